// Package logging configures the process-wide zerolog logger: a single
// global logger writing structured, leveled lines, to stderr by default so
// the daemon behaves under systemd/journald without requiring a writable
// log path to be configured up front.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the process-wide logger at the given level. If path is
// non-empty, log lines are written to that file (created if missing) in
// addition to stderr; otherwise stderr is the sole sink.
func Init(level zerolog.Level, path string) error {
	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if level == zerolog.DebugLevel {
		log.Debug().Msg("log level set to debug")
	}
	return nil
}

// ParseLevel maps a config string to a zerolog.Level, defaulting to Info
// for anything unrecognized rather than failing startup over a typo.
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

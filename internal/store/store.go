// Package store persists relay accounting (cycle counts, accumulated on/off
// time, dwell baselines) across daemon restarts to a sqlite database: a
// single sql.DB, schema created on first use, INSERT OR REPLACE keyed
// writes. A header row carries a magic value and a pair of version numbers;
// a mismatch on either discards the whole file rather than risk restoring
// accounting against a schema it was not written for.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

// schemaMagic identifies the file as an rwchcd store; engineVersion bumps
// when the table layout changes, callerVersion when the caller's
// interpretation of the saved fields changes independent of layout.
const (
	schemaMagic   = "rwchcd-store"
	engineVersion = 1
	callerVersion = 1
)

// Store wraps a sqlite database holding one row per (backend, resource)
// relay.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite file at path, verifies its
// header, and discards and recreates the schema if the header is missing,
// corrupt, or from an incompatible version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// go-sqlite3 hands out a fresh, independent in-memory database per
	// connection; a pool of more than one would make writes on one
	// connection invisible to reads on another.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema() error {
	ok, err := s.headerMatches()
	if err != nil {
		return fmt.Errorf("read store header: %w", err)
	}
	if !ok {
		log.Warn().Msg("store header missing or incompatible, discarding persisted relay state")
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS header; DROP TABLE IF EXISTS relays;`); err != nil {
			return fmt.Errorf("reset store schema: %w", err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS header (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			magic TEXT NOT NULL,
			engine_version INTEGER NOT NULL,
			caller_version INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS relays (
			backend TEXT NOT NULL,
			resource TEXT NOT NULL,
			is_on INTEGER NOT NULL,
			since_tick INTEGER NOT NULL,
			cum_on_tick INTEGER NOT NULL,
			cum_off_tick INTEGER NOT NULL,
			cycles INTEGER NOT NULL,
			PRIMARY KEY (backend, resource)
		);
	`); err != nil {
		return fmt.Errorf("create store schema: %w", err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO header (id, magic, engine_version, caller_version) VALUES (1, ?, ?, ?)`,
		schemaMagic, engineVersion, callerVersion)
	return err
}

func (s *Store) headerMatches() (bool, error) {
	var magic string
	var eng, caller int
	row := s.db.QueryRow(`SELECT magic, engine_version, caller_version FROM header WHERE id = 1`)
	if err := row.Scan(&magic, &eng, &caller); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		// Table does not exist yet on a brand new file; sqlite reports this
		// as a generic query error rather than sql.ErrNoRows.
		return false, nil
	}
	return magic == schemaMagic && eng == engineVersion && caller == callerVersion, nil
}

// SaveRelay persists a relay's accounting keyed by backend and resource
// name.
func (s *Store) SaveRelay(backend, resource string, snap actuator.Saved) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO relays (backend, resource, is_on, since_tick, cum_on_tick, cum_off_tick, cycles)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		backend, resource, snap.IsOn, int64(snap.Since), int64(snap.CumOn), int64(snap.CumOff), snap.Cycles)
	if err != nil {
		return fmt.Errorf("save relay %s/%s: %w", backend, resource, err)
	}
	return nil
}

// LoadRelay returns a relay's persisted accounting, and false if no row
// exists for it yet (e.g. first run, or a newly added relay).
func (s *Store) LoadRelay(backend, resource string) (actuator.Saved, bool, error) {
	var snap actuator.Saved
	var since, cumOn, cumOff int64
	row := s.db.QueryRow(`SELECT is_on, since_tick, cum_on_tick, cum_off_tick, cycles FROM relays WHERE backend = ? AND resource = ?`,
		backend, resource)
	if err := row.Scan(&snap.IsOn, &since, &cumOn, &cumOff, &snap.Cycles); err != nil {
		if err == sql.ErrNoRows {
			return actuator.Saved{}, false, nil
		}
		return actuator.Saved{}, false, fmt.Errorf("load relay %s/%s: %w", backend, resource, err)
	}
	snap.Since = timekeep.Tick(since)
	snap.CumOn = timekeep.Tick(cumOn)
	snap.CumOff = timekeep.Tick(cumOff)
	return snap, true, nil
}

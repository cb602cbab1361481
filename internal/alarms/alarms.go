// Package alarms collects condition reports raised during a single master
// loop iteration and, on a throttled cadence, hands the batch to an
// external notifier process. The collection itself is stateless across
// iterations by design: whatever was raised since the last Run is reported
// or dropped, and the list is cleared unconditionally every Run, so a
// persistent condition must be re-raised on every master-loop pass to keep
// showing — and a notifier that is down can never cause an unbounded
// backlog.
package alarms

import (
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
)

// Entry is one raised alarm.
type Entry struct {
	ID      string
	Code    rwerr.Code
	Message string
	Raised  time.Time
}

// Alarms is the per-process alarm collector.
type Alarms struct {
	mu       sync.Mutex
	entries  []Entry // newest-first
	lastSent time.Time
	throttle time.Duration

	notifierPath string
	notifierArgs []string
}

// New builds a collector that hands off to notifierPath (plus any fixed
// leading args) no more often than throttle.
func New(notifierPath string, notifierArgs []string, throttle time.Duration) *Alarms {
	return &Alarms{notifierPath: notifierPath, notifierArgs: notifierArgs, throttle: throttle}
}

// Raise records a new alarm, newest first.
func (a *Alarms) Raise(code rwerr.Code, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append([]Entry{{ID: uuid.NewString(), Code: code, Message: message, Raised: time.Now()}}, a.entries...)
}

// Pending returns the number of alarms raised since the last Run, for
// diagnostics.
func (a *Alarms) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Run drains the current batch: once per throttle period the batch is
// logged and handed to the notifier; in between, it is simply dropped.
// The queue is cleared unconditionally either way, so a condition that
// matters past this pass must be raised again on the next — and the log
// shows a persistent condition once per throttle period, not once per
// master pass.
func (a *Alarms) Run(now time.Time) error {
	a.mu.Lock()
	entries := a.entries
	a.entries = nil
	throttled := now.Sub(a.lastSent) < a.throttle
	if !throttled && len(entries) > 0 {
		a.lastSent = now
	}
	a.mu.Unlock()

	if len(entries) == 0 || throttled {
		return nil
	}

	for _, e := range entries { // newest first
		log.Warn().Str("kind", e.Code.String()).Str("alarm", e.Message).Msg("alarm raised")
	}

	// Build the notifier's argv oldest-first: entries are stored
	// newest-first, so present them to the notifier in the order they
	// actually happened.
	args := append([]string{}, a.notifierArgs...)
	for i := len(entries) - 1; i >= 0; i-- {
		args = append(args, entries[i].Message)
	}

	if a.notifierPath == "" {
		return nil
	}

	cmd := exec.Command(a.notifierPath, args...)
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Str("notifier", a.notifierPath).Msg("failed to launch alarm notifier")
		return err
	}
	// The notifier is fire-and-forget: the master loop does not block on
	// its exit, only on its successful launch.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn().Err(err).Str("notifier", a.notifierPath).Msg("alarm notifier exited with error")
		}
	}()
	return nil
}

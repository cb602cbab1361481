package master

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/circuit"
)

// ScheduleEntry is one weekly runmode override: at Weekday/Hour/Minute,
// force CircuitName (empty meaning every circuit) into Mode.
type ScheduleEntry struct {
	Weekday     time.Weekday
	Hour        int
	Minute      int
	CircuitName string
	Mode        circuit.RunMode
}

// ApplyModeFunc applies a scheduled mode change to a named circuit (or
// every circuit, if name is empty).
type ApplyModeFunc func(circuitName string, mode circuit.RunMode) error

// Scheduler polls a weekly schedule once a minute and applies any entries
// that match the current moment; polling at a minute resolution rather
// than arming one-shot timers per entry keeps it immune to clock steps
// (DST, NTP slew) simply re-evaluating the whole table on its own cadence.
type Scheduler struct {
	entries []ScheduleEntry
	apply   ApplyModeFunc
	now     func() time.Time

	lastFired map[string]time.Time
}

// NewScheduler builds a scheduler. now is injectable for tests; pass
// time.Now in production.
func NewScheduler(entries []ScheduleEntry, apply ApplyModeFunc, now func() time.Time) *Scheduler {
	return &Scheduler{entries: entries, apply: apply, now: now, lastFired: make(map[string]time.Time)}
}

// Run polls once a minute until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	s.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := s.now()
	for i, e := range s.entries {
		if now.Weekday() != e.Weekday || now.Hour() != e.Hour || now.Minute() != e.Minute {
			continue
		}
		key := fmt.Sprintf("entry:%d", i)
		if last, ok := s.lastFired[key]; ok && now.Sub(last) < time.Minute {
			continue
		}
		s.lastFired[key] = now
		if err := s.apply(e.CircuitName, e.Mode); err != nil {
			log.Error().Err(err).Str("circuit", e.CircuitName).Msg("scheduled runmode override failed")
		}
	}
}

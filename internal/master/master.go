// Package master implements the daemon's single master control thread: a
// fixed-cadence loop that samples hardware inputs, runs the outdoor and
// plant models, applies the current runtime mode, writes hardware outputs,
// drains the alarm queue, and checks in with an independent watchdog —
// plus the secondary timer and weekly-schedule threads that run alongside
// it.
package master

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/alarms"
	"github.com/thatsimonsguy/rwchcd/internal/outdoor"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/runtime"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

// Loop is the master control loop.
type Loop struct {
	Clock    timekeep.Clock
	Runtime  *runtime.Runtime
	Outdoor  *outdoor.Model
	Alarms   *alarms.Alarms
	Watchdog *Watchdog

	Period          time.Duration
	WatchdogAckWait time.Duration

	// InputSample is invoked at the top of each iteration to refresh any
	// cached sensor state the models depend on (e.g. the outdoor sensor
	// feeding Outdoor.Update). Optional.
	InputSample func(now timekeep.Tick)
}

// Run executes the master loop until ctx is canceled or the watchdog
// fires. The iteration order is fixed: sample hardware inputs, run the
// plant (which is itself circuits, then DHWTs, then heat sources, writing
// hardware outputs as it goes), drain alarms, then check in with the
// watchdog before sleeping for the remainder of the period.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.watchdogAbort():
			return rwerr.New(rwerr.Generic, "watchdog aborted master loop")
		case <-ticker.C:
			if err := l.iterate(ctx); err != nil {
				log.Error().Err(err).Msg("master loop iteration failed")
			}
		}
	}
}

func (l *Loop) watchdogAbort() <-chan struct{} {
	if l.Watchdog == nil {
		return nil
	}
	return l.Watchdog.Aborted()
}

func (l *Loop) iterate(ctx context.Context) error {
	now := l.Clock.Now()

	if l.InputSample != nil {
		l.InputSample(now)
	}

	if l.Runtime.Running() {
		if err := l.Runtime.Plant().Run(now, l.Outdoor); err != nil {
			log.Error().Err(err).Msg("plant run failed")
		}
	}

	if l.Alarms != nil {
		if err := l.Alarms.Run(time.Now()); err != nil {
			log.Error().Err(err).Msg("alarms run failed")
		}
	}

	if l.Watchdog != nil {
		ackWait := l.WatchdogAckWait
		if ackWait == 0 {
			ackWait = 2 * time.Second
		}
		if err := l.Watchdog.KeepAlive(ctx, ackWait); err != nil {
			return err
		}
	}

	return nil
}

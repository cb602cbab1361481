package master

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
)

// Watchdog runs as an independent goroutine from the master loop: it
// expects a keep-alive on every master iteration and aborts the process if
// one does not arrive within timeout, catching a master loop that has
// wedged (deadlocked, spun, or had its clock step/freeze underneath it)
// rather than silently continuing to drive hardware on stale state.
type Watchdog struct {
	timeout   time.Duration
	keepAlive chan struct{}
	abort     chan struct{}
}

// NewWatchdog builds a watchdog with the given timeout.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{
		timeout:   timeout,
		keepAlive: make(chan struct{}),
		abort:     make(chan struct{}),
	}
}

// Run is the watchdog's goroutine body; it returns when ctx is canceled or
// when it aborts on timeout.
func (w *Watchdog) Run(ctx context.Context) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.keepAlive:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.timeout)
		case <-timer.C:
			log.Error().Dur("timeout", w.timeout).Msg("watchdog timeout: master loop did not check in, aborting")
			close(w.abort)
			return
		}
	}
}

// KeepAlive sends one keep-alive, blocking up to ackTimeout for the
// watchdog goroutine to accept it. A failure to deliver within ackTimeout
// means the watchdog goroutine itself is not scheduling, which is as
// serious as a watchdog timeout and is reported the same way.
func (w *Watchdog) KeepAlive(ctx context.Context, ackTimeout time.Duration) error {
	select {
	case w.keepAlive <- struct{}{}:
		return nil
	case <-time.After(ackTimeout):
		return rwerr.New(rwerr.Generic, "watchdog keep-alive not acknowledged in time")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Aborted returns a channel closed once the watchdog has fired.
func (w *Watchdog) Aborted() <-chan struct{} { return w.abort }

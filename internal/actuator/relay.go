// Package actuator implements the stateful hardware-actuator library:
// relays with minimum dwell times, pumps (a relay plus an off-cooldown),
// and motorized mixing valves with a pluggable position-control law.
package actuator

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

// Transition reports what Update did to the relay's output on this call.
type Transition int

const (
	NoChange Transition = iota
	TurnedOn
	TurnedOff
)

// Relay is a single on/off output with independent minimum on-time and
// minimum off-time dwells: once switched, it will not be switched back
// until the relevant dwell has elapsed, regardless of how the request
// changes in the interim.
type Relay struct {
	name string
	out  hwbackend.Handle

	minOn  timekeep.Tick
	minOff timekeep.Tick

	requestedOn bool
	isOn        bool
	since       timekeep.Tick // tick of the last actual transition; what dwell is measured against
	lastTick    timekeep.Tick // tick last Update accounted cumOn/cumOff up to

	cumOn    timekeep.Tick
	cumOff   timekeep.Tick
	cycles   int
	failsafe bool
}

// NewRelay builds a relay bound to out, starting in the off state as of
// tick `now`. `since` is backdated by the larger dwell so a freshly built
// relay (e.g. at daemon startup) is immediately eligible to switch rather
// than having to wait out a dwell against a transition that never happened.
func NewRelay(name string, out hwbackend.Handle, minOn, minOff timekeep.Tick, now timekeep.Tick) *Relay {
	backdate := minOn
	if minOff > backdate {
		backdate = minOff
	}
	return &Relay{name: name, out: out, minOn: minOn, minOff: minOff, since: now - backdate, lastTick: now}
}

// RequestOn records the desired state; it takes effect on the next Update
// once the current dwell has elapsed.
func (r *Relay) RequestOn(on bool) { r.requestedOn = on }

// Name returns the relay's identifying name, as passed to NewRelay.
func (r *Relay) Name() string { return r.name }

// IsOn reports the relay's actual (not requested) state.
func (r *Relay) IsOn() bool { return r.isOn }

// Since returns the tick of the relay's last actual transition.
func (r *Relay) Since() timekeep.Tick { return r.since }

// Failsafe reports whether the last hardware write failed, in which case
// the relay's believed state may not match reality.
func (r *Relay) Failsafe() bool { return r.failsafe }

// Cycles returns the lifetime on-transition count.
func (r *Relay) Cycles() int { return r.cycles }

// Accumulated returns cumulative on-time and off-time in ticks.
func (r *Relay) Accumulated() (on, off timekeep.Tick) { return r.cumOn, r.cumOff }

// Update advances the relay's internal time accounting to `now` and, if a
// state change is pending and its dwell has elapsed, drives the hardware.
func (r *Relay) Update(now timekeep.Tick) (Transition, error) {
	accounted := now - r.lastTick
	r.lastTick = now
	if r.isOn {
		r.cumOn += accounted
	} else {
		r.cumOff += accounted
	}

	transition := NoChange
	if r.requestedOn != r.isOn {
		dwell := r.minOff
		if r.isOn {
			dwell = r.minOn
		}
		elapsed := now - r.since
		if elapsed >= dwell {
			r.isOn = r.requestedOn
			if err := r.out.SetOutput(r.isOn); err != nil {
				r.failsafe = true
				log.Error().Str("relay", r.name).Err(err).Msg("relay output write failed")
				return NoChange, rwerr.Wrap(rwerr.Hardware, "relay write failed", err)
			}
			r.failsafe = false
			if r.isOn {
				r.cycles++
				transition = TurnedOn
			} else {
				transition = TurnedOff
			}
			r.since = now
		}
	}
	return transition, nil
}

// Saved is the persisted snapshot of a relay's accounting, restored across
// a daemon restart so cycle counts and dwell baselines survive.
type Saved struct {
	IsOn   bool
	Since  timekeep.Tick
	CumOn  timekeep.Tick
	CumOff timekeep.Tick
	Cycles int
}

// Restore reinstates accounting from a persisted snapshot without driving
// the hardware; the caller is expected to have already read the actual
// relay state from the backend into the running struct if it differs.
func (r *Relay) Restore(s Saved) {
	r.isOn = s.IsOn
	r.requestedOn = s.IsOn
	r.since = s.Since
	r.lastTick = s.Since
	r.cumOn = s.CumOn
	r.cumOff = s.CumOff
	r.cycles = s.Cycles
}

// Snapshot captures the current accounting for persistence.
func (r *Relay) Snapshot() Saved {
	return Saved{IsOn: r.isOn, Since: r.since, CumOn: r.cumOn, CumOff: r.cumOff, Cycles: r.cycles}
}

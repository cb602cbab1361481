// Package heatsource implements a single boiler heat source: antifreeze
// protection with hysteresis latching, a configurable idle policy, a hard
// safety ceiling on the feed-water reading, hysteresis burner control with
// a minimum run time, a load pump, and the consumer_shift signal it
// publishes back to circuits when it is struggling to keep up with demand
// or has tripped a safety fault.
package heatsource

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// IdleMode selects when the burner is allowed to run with no consumer
// requesting heat.
type IdleMode int

const (
	IdleNever IdleMode = iota
	IdleFrostOnly
	IdleAlways
)

// Mode is the heat source's own runmode, set alongside the consumers'
// runmodes: it decides how the burner target is selected before the
// consumers' aggregated request is even consulted.
type Mode int

const (
	Off Mode = iota
	Manual
	Comfort
	Eco
	FrostFree
	DHWOnly
)

// ConsumerShiftSafety is the consumer_shift value published while a
// hardmax trip or feed-water sensor fault is in effect: the maximum
// positive shift, which raises every connected circuit's target so the
// circuits draw as much heat off the source as they can.
const ConsumerShiftSafety = 100.0

// Config gathers a boiler's static tuning.
type Config struct {
	Idle IdleMode

	// FreezeTemp trips the antifreeze latch when the feed-water reading
	// falls to or below it; the latch clears once the reading rises above
	// LimitTMin + Hysteresis/2, so a sensor hovering right at the trip
	// point cannot chatter the burner.
	FreezeTemp units.Temp

	// LimitTMin/LimitTMax bound target_temp; LimitTMin is also the floor
	// idle policy clips up to and the antifreeze-latch untrip reference.
	// LimitTMax doubles as the manual-mode target.
	LimitTMin units.Temp
	LimitTMax units.Temp

	// LimitTHardMax is the safety ceiling on the feed-water reading
	// itself: above it (or on sensor fault) the burner trips its
	// safety shutdown and the source publishes ConsumerShiftSafety.
	LimitTHardMax units.Temp

	// Hysteresis: the burner switches on hysteresis/2 below target, off
	// hysteresis/2 above. The minimum burn time is not carried here: it is
	// enforced as the burner relay's own min-dwell, set at construction.
	Hysteresis units.Delta

	// ConsumerStopDelay is how long, after the burner stops, consumers are
	// still told a stop is recent (see Circuit.SetConsumerStopActive) so
	// they keep absorbing residual heat in the boiler body instead of
	// cutting their own pumps the instant the burner does.
	ConsumerStopDelay timekeep.Tick
}

// HeatSource is one boiler.
type HeatSource struct {
	Name string
	Cfg  Config

	burner   *actuator.Relay
	loadPump *actuator.Pump // nil if the source has no dedicated load pump
	feed     func() units.Temp

	mode             Mode
	request          units.Temp
	couldSleep       bool
	antifreezeActive bool
	consumerShift    float64 // signed percentage broadcast to circuits
	lastTarget       units.Temp
	stopUntil        timekeep.Tick
}

// New builds a heat source bound to its burner relay, an optional load
// pump, and a feed-water sensor reader.
func New(name string, cfg Config, burner *actuator.Relay, loadPump *actuator.Pump, feed func() units.Temp) *HeatSource {
	return &HeatSource{Name: name, Cfg: cfg, burner: burner, loadPump: loadPump, feed: feed, mode: Comfort}
}

// SetMode changes the source's runmode.
func (h *HeatSource) SetMode(m Mode) error {
	if m < Off || m > DHWOnly {
		return rwerr.New(rwerr.InvalidMode, "unknown heat source runmode")
	}
	h.mode = m
	return nil
}

// Mode returns the source's current runmode.
func (h *HeatSource) Mode() Mode { return h.mode }

// SetRequest records the maximum of every consumer's requested temperature
// for this iteration, computed by the plant.
func (h *HeatSource) SetRequest(req units.Temp) { h.request = req }

// SetCouldSleep reports the plant-wide could_sleep signal: when true and
// this source is idling with no request, IdleAlways leaves the burner off
// instead of clipping target_temp up to LimitTMin.
func (h *HeatSource) SetCouldSleep(b bool) { h.couldSleep = b }

// ConsumerShift returns the current demand-shaping percentage to be
// broadcast back to every circuit.
func (h *HeatSource) ConsumerShift() float64 { return h.consumerShift }

// ConsumerStopActive reports whether the burner was on within the last
// ConsumerStopDelay of now, the signal circuits use to decide whether an
// OFF runmode should hold its last target rather than fully offline.
func (h *HeatSource) ConsumerStopActive(now timekeep.Tick) bool {
	return !timekeep.AGeB(now, h.stopUntil)
}

// AntifreezeActive reports whether the antifreeze latch is currently
// tripped.
func (h *HeatSource) AntifreezeActive() bool { return h.antifreezeActive }

// Logic decides the burner's target temperature for this iteration. It
// must be called once per master loop iteration before Control.
func (h *HeatSource) Logic() units.Temp {
	water := h.feed()

	if units.Usable(water) {
		if water <= h.Cfg.FreezeTemp {
			h.antifreezeActive = true
		} else if water > h.Cfg.LimitTMin.Add(h.Cfg.Hysteresis/2) {
			h.antifreezeActive = false
		}
	}

	// Runmode selects where the target comes from; Off still yields to the
	// antifreeze latch, Manual runs flat out at the ceiling.
	var target units.Temp
	switch h.mode {
	case Off:
		target = units.NoRequest
		if h.antifreezeActive {
			target = h.Cfg.LimitTMin
		}
	case Manual:
		target = h.Cfg.LimitTMax
	default:
		target = h.request
		if !units.Usable(target) && h.antifreezeActive {
			target = h.Cfg.LimitTMin
		}
	}

	if !units.Usable(target) && h.mode != Off {
		switch {
		case h.Cfg.Idle == IdleNever:
			target = h.Cfg.LimitTMin
		case h.Cfg.Idle == IdleFrostOnly && h.mode != FrostFree:
			target = h.Cfg.LimitTMin
		case h.couldSleep:
			// stay off: the plant is idle and allowed to sleep
		default:
			target = h.Cfg.LimitTMin
		}
	}

	if units.Usable(target) {
		target = units.Clip(target, h.Cfg.LimitTMin, h.Cfg.LimitTMax)
	}

	h.lastTarget = target
	return target
}

// Target returns the water temperature target Logic most recently computed.
func (h *HeatSource) Target() units.Temp { return h.lastTarget }

// BurnerOn reports whether the burner relay is currently energized.
func (h *HeatSource) BurnerOn() bool { return h.burner.IsOn() }

// Burner returns the burner relay, for persisting its accounting across restarts.
func (h *HeatSource) Burner() *actuator.Relay { return h.burner }

// LoadPump returns the source's dedicated load pump, or nil if it has none.
func (h *HeatSource) LoadPump() *actuator.Pump { return h.loadPump }

// Control is the run phase: it reads the feed-water sensor fresh, publishes
// this iteration's consumer_shift from that same reading, drives the load
// pump, and runs hysteresis burner control with the hard safety ceiling.
// now is the current tick and target is Logic's return value.
func (h *HeatSource) Control(now timekeep.Tick, target units.Temp) error {
	water := h.feed()

	if !units.Usable(water) || water > h.Cfg.LimitTHardMax {
		h.consumerShift = ConsumerShiftSafety
		h.burner.RequestOn(false)
		if h.loadPump != nil {
			h.loadPump.Force(now, true)
		}
		if _, err := h.burner.Update(now); err != nil {
			log.Error().Str("source", h.Name).Err(err).Msg("boiler safety shutdown failed to apply")
		}
		return rwerr.New(rwerr.Safety, "boiler feed water unusable or above hard safety ceiling")
	}

	if water < h.Cfg.LimitTMin {
		h.consumerShift = 10 * water.Sub(h.Cfg.LimitTMin).ToKelvin()
	} else {
		h.consumerShift = 0
	}

	if h.loadPump != nil {
		h.loadPump.RequestOn(now, true)
		if _, err := h.loadPump.Update(now); err != nil {
			log.Error().Str("source", h.Name).Err(err).Msg("load pump update failed")
		}
	}

	if !units.Usable(target) {
		h.burner.RequestOn(false)
	} else {
		// Trip floored at LimitTMin so the body never idles below the
		// condensation floor, untrip capped at LimitTMax.
		tripAt := target.Add(-h.Cfg.Hysteresis / 2)
		if tripAt < h.Cfg.LimitTMin {
			tripAt = h.Cfg.LimitTMin
		}
		untripAt := target.Add(h.Cfg.Hysteresis / 2)
		if untripAt > h.Cfg.LimitTMax {
			untripAt = h.Cfg.LimitTMax
		}
		switch {
		case water < tripAt:
			h.burner.RequestOn(true)
		case water > untripAt:
			h.burner.RequestOn(false)
		}
		// inside the hysteresis band: leave the burner's current request
		// alone, the relay's own dwell enforces the minimum burn time
	}

	_, err := h.burner.Update(now)
	if err != nil {
		return rwerr.Wrap(rwerr.Hardware, "burner relay update failed", err)
	}
	if h.burner.IsOn() {
		h.stopUntil = now + h.Cfg.ConsumerStopDelay
	}
	return nil
}

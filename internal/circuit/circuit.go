// Package circuit implements one hydraulic heating loop: a runmode state
// machine, the templaw that turns outdoor temperature into a water-temp
// target, a rate-of-rise limiter so the loop is never asked to heat up
// faster than its structure can tolerate, and the outdoor-temperature
// cutoff above which the circuit simply shuts off for the season.
package circuit

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// RunMode selects how a circuit's target temperature is derived.
type RunMode int

const (
	Off RunMode = iota
	Manual
	Comfort
	Eco
	FrostFree
	DHWOnly
)

func (m RunMode) String() string {
	switch m {
	case Off:
		return "off"
	case Manual:
		return "manual"
	case Comfort:
		return "comfort"
	case Eco:
		return "eco"
	case FrostFree:
		return "frostfree"
	case DHWOnly:
		return "dhwonly"
	default:
		return "invalid"
	}
}

// Config gathers a circuit's static tuning: the templaw, eco/comfort
// setpoint shifts, rate-of-rise limit, and outdoor cutoff hysteresis.
type Config struct {
	Law TempLaw

	EcoShift       units.Delta
	FrostFreeTemp  units.Temp
	ManualTemp     units.Temp

	// ComfortAmbient/EcoAmbient/FrostFreeAmbient are the request_ambient
	// setpoints (target room temperature) per runmode, consulted only when
	// AmbientFactorPct is non-zero and a room sensor is wired via
	// SetAmbientTarget.
	ComfortAmbient   units.Temp
	EcoAmbient       units.Temp
	FrostFreeAmbient units.Temp

	// RorLimitPerHour bounds how fast the commanded water temperature may
	// rise, in delta-kelvin per hour; zero disables the limiter.
	RorLimitPerHour units.Delta

	// OutdoorCutoffHigh/Low give the outdoor-temperature hysteresis band:
	// the circuit switches off once outdoor rises above High and will not
	// turn back on until it falls below Low.
	OutdoorCutoffHigh units.Temp
	OutdoorCutoffLow  units.Temp

	// AmbientFactorPct is the circuit's ambient-influence factor: how much
	// of the gap between a measured room temperature and its setpoint gets
	// folded into the templaw's water-temp target, 0 disabling ambient
	// feedback entirely (pure weather compensation).
	AmbientFactorPct float64

	// SetToffset shifts request_ambient to form target_ambient, the value
	// fed into the templaw's ambient-shift term.
	SetToffset units.Delta

	// LimitWtMin/LimitWtMax bound the templaw output before any plant-wide
	// interference is applied; LimitWtMax is also the ceiling re-applied
	// after interference.
	LimitWtMin units.Temp
	LimitWtMax units.Temp

	// TempInOffset is added to the uninfluenced target (after the
	// LimitWtMin/LimitWtMax clip, before the stop-delay hold and consumer
	// shift) to form heat_request.
	TempInOffset units.Delta
}

// Circuit is one hydraulic loop: its runmode, its computed target, its
// mixing valve (nil if the loop has none, e.g. a direct radiator circuit),
// and its circulator pump.
type Circuit struct {
	Name string
	Cfg  Config

	mode RunMode

	valve *actuator.Valve // nil if unmixed
	pump  *actuator.Pump

	target     units.Temp // influenced target, drives the valve
	saved      units.Temp // uninfluenced target, drives the heat request
	lastTarget units.Temp
	lastTick   timekeep.Tick

	cutoffActive bool

	consumerShift      float64 // broadcast down from plant, a signed percentage that shifts the valve target
	consumerStopActive bool    // broadcast down from plant: heat source stopped less than its consumer_stop_delay ago
	offHold            bool    // in OFF, holding the last target rather than fully offline, per consumer_stop_delay

	ambientShift     units.Delta
	maintenanceUntil timekeep.Tick
}

// New builds a circuit bound to an (optional) valve and a circulator pump.
func New(name string, cfg Config, valve *actuator.Valve, pump *actuator.Pump, now timekeep.Tick) *Circuit {
	return &Circuit{Name: name, Cfg: cfg, mode: Off, valve: valve, pump: pump, lastTick: now, saved: units.TempUnset, lastTarget: units.TempUnset}
}

// SetMode changes the circuit's runmode.
func (c *Circuit) SetMode(m RunMode) error {
	if m < Off || m > DHWOnly {
		return rwerr.New(rwerr.InvalidMode, "unknown circuit runmode")
	}
	c.mode = m
	return nil
}

func (c *Circuit) Mode() RunMode { return c.mode }

// Pump returns the circuit's circulator pump, for persisting its relay
// accounting across restarts.
func (c *Circuit) Pump() *actuator.Pump { return c.pump }

// Valve returns the circuit's mixing valve, or nil if the circuit is
// unmixed.
func (c *Circuit) Valve() *actuator.Valve { return c.valve }

// ValvePosition reports the mixing valve's current position in tenths of a
// percent open, and whether the circuit has a valve at all.
func (c *Circuit) ValvePosition() (pos int, ok bool) {
	if c.valve == nil {
		return 0, false
	}
	return c.valve.Position(), true
}

// SetAmbientTarget computes and records the ambient-influence shift from a
// measured room temperature against the ambient setpoint implied by the
// circuit's current runmode (request_ambient), scaled by AmbientFactorPct:
// a room running cold shifts the water-temp target up, a room running warm
// shifts it down. Either temperature being unusable leaves the previous
// shift untouched rather than zeroing it, so a single missed ambient
// sample does not yank the templaw output back to unshifted.
func (c *Circuit) SetAmbientTarget(actual units.Temp) {
	setpoint := c.requestAmbient()
	if !units.Usable(actual) || !units.Usable(setpoint) || c.Cfg.AmbientFactorPct == 0 {
		return
	}
	diff := setpoint.Sub(actual) // positive: room running cold, wants hotter water
	c.ambientShift = units.Delta(float64(diff) * c.Cfg.AmbientFactorPct / 100.0)
}

// requestAmbient returns the ambient setpoint implied by the circuit's
// current runmode, or TempUnset if the mode has none (e.g. Manual, which
// targets a water temperature directly rather than a room temperature).
func (c *Circuit) requestAmbient() units.Temp {
	switch c.mode {
	case Comfort:
		return c.Cfg.ComfortAmbient
	case Eco:
		return c.Cfg.EcoAmbient
	case FrostFree:
		return c.Cfg.FrostFreeAmbient
	default:
		return units.TempUnset
	}
}

// SetConsumerShift applies the plant-wide demand shift: consumer_shift is a
// signed percentage broadcast by a heat source under load stress, applied
// as 0.25*consumer_shift kelvin against the circuit's target: a negative
// shift (boiler below its minimum) lowers every circuit's target, a
// positive one (boiler at its hard limit) raises it so the circuits draw
// more heat off the source.
func (c *Circuit) SetConsumerShift(pct float64) { c.consumerShift = pct }

// SetConsumerStopActive reports whether the heat source stopped requesting
// less than its configured consumer_stop_delay ago. While active, a
// circuit that goes OFF with a non-zero prior target holds that target
// (and keeps its valve updating) instead of fully offlining, so the loop
// keeps absorbing residual heat left in the source rather than slamming a
// cold return straight back at it.
func (c *Circuit) SetConsumerStopActive(active bool) { c.consumerStopActive = active }

// Logic computes the circuit's target water temperature for this iteration
// given the current outdoor reading. It must be called once per master
// loop iteration, before Control.
func (c *Circuit) Logic(now timekeep.Tick, outdoor units.Temp) {
	elapsed := now - c.lastTick
	c.lastTick = now

	if c.mode == Off {
		// When the hold condition applies, fall straight through to the
		// valve-update block in Control, skipping pump management entirely,
		// not just the heat request.
		if units.Usable(c.lastTarget) && c.consumerStopActive {
			c.offHold = true
			c.target = c.lastTarget
			return
		}
		c.offHold = false
		c.target = units.TempUnset
		c.saved = units.TempUnset
		c.lastTarget = units.TempUnset
		return
	}
	c.offHold = false

	c.applyOutdoorCutoff(outdoor)
	if c.cutoffActive {
		c.target = units.TempUnset
		c.saved = units.TempUnset
		return
	}

	var raw units.Temp
	switch c.mode {
	case Manual:
		raw = c.Cfg.ManualTemp
	case FrostFree:
		raw = c.Cfg.FrostFreeTemp
	case DHWOnly:
		c.target = units.TempUnset
		c.saved = units.TempUnset
		return
	case Eco:
		raw = c.Cfg.Law.Compute(outdoor, c.targetAmbient()).Add(c.ambientShift).Add(c.Cfg.EcoShift)
	default: // Comfort
		raw = c.Cfg.Law.Compute(outdoor, c.targetAmbient()).Add(c.ambientShift)
	}

	raw = c.rateLimit(raw, elapsed)
	raw = clampTemp(raw, c.Cfg.LimitWtMin, c.Cfg.LimitWtMax)

	// The uninfluenced target is what the heat request is built from; the
	// plant-wide interferences below only reshape what the valve chases, so
	// a boiler leaning on its consumers (positive shift) is never asked to
	// deliver more because of its own shift.
	c.saved = raw

	if c.consumerStopActive && units.Usable(c.lastTarget) && c.lastTarget > raw {
		raw = c.lastTarget
	}
	if c.consumerShift != 0 {
		raw = raw.Add(units.DeltaK(0.25 * c.consumerShift))
	}
	raw = clampTempMax(raw, c.Cfg.LimitWtMax)

	c.target = raw
	c.lastTarget = c.target
}

// targetAmbient returns request_ambient shifted by set_toffset, or TempUnset
// if the current runmode has no ambient setpoint (e.g. Manual, DHWOnly).
func (c *Circuit) targetAmbient() units.Temp {
	ambient := c.requestAmbient()
	if !units.Usable(ambient) {
		return units.TempUnset
	}
	return ambient.Add(c.Cfg.SetToffset)
}

// clampTemp clips t into [lo,hi], treating a zero bound as "unconfigured"
// (no clip on that side); an unusable t passes through untouched.
func clampTemp(t, lo, hi units.Temp) units.Temp {
	if !units.Usable(t) {
		return t
	}
	if lo != 0 && t < lo {
		t = lo
	}
	if hi != 0 && t > hi {
		t = hi
	}
	return t
}

// clampTempMax clips t to at most hi, treating a zero bound as unconfigured.
func clampTempMax(t, hi units.Temp) units.Temp {
	if !units.Usable(t) || hi == 0 || t <= hi {
		return t
	}
	return hi
}

// applyOutdoorCutoff implements the summer shutoff hysteresis: once
// outdoor rises above OutdoorCutoffHigh the circuit is parked off, and it
// will not resume until outdoor has fallen below OutdoorCutoffLow, so a
// single warm afternoon does not cycle the circuit on and off all day.
func (c *Circuit) applyOutdoorCutoff(outdoor units.Temp) {
	if c.Cfg.OutdoorCutoffHigh == 0 && c.Cfg.OutdoorCutoffLow == 0 {
		return // no cutoff configured
	}
	if !units.Usable(outdoor) {
		return
	}
	if !c.cutoffActive && outdoor >= c.Cfg.OutdoorCutoffHigh {
		c.cutoffActive = true
	} else if c.cutoffActive && outdoor < c.Cfg.OutdoorCutoffLow {
		c.cutoffActive = false
	}
}

// rateLimit bounds how much the target may rise per elapsed tick, based on
// Cfg.RorLimitPerHour; a drop in target is never limited, only a rise,
// since there is no harm in a loop cooling down faster than it heats.
func (c *Circuit) rateLimit(raw units.Temp, elapsed timekeep.Tick) units.Temp {
	if c.Cfg.RorLimitPerHour == 0 || !units.Usable(c.lastTarget) || !units.Usable(raw) {
		return raw
	}
	if raw <= c.lastTarget {
		return raw
	}
	maxRise := units.Delta(float64(c.Cfg.RorLimitPerHour) * timekeep.TkToSec(elapsed) / 3600.0)
	capped := c.lastTarget.Add(maxRise)
	if capped < raw {
		return capped
	}
	return raw
}

// HeatRequest returns the temperature the circuit wants its heat source
// to supply, or units.NoRequest if the circuit currently wants nothing.
// It is built from the uninfluenced target, so plant-wide interference
// (consumer shift, stop-delay hold) changes what the valve chases without
// feeding back into the demand the heat source sees.
// now is accepted for symmetry with other per-tick accessors but is not
// itself consulted; the suppression window is tracked by Logic via
// offHold, not by a deadline compared against now.
func (c *Circuit) HeatRequest(now timekeep.Tick) units.Temp {
	if c.offHold {
		return units.NoRequest
	}
	if !units.Usable(c.saved) {
		return units.NoRequest
	}
	return c.saved.Add(c.Cfg.TempInOffset)
}

// Target returns the circuit's current computed water-temperature target,
// including one held over an OFF hold window; exposed for tests and
// diagnostics.
func (c *Circuit) Target() units.Temp { return c.target }

// MaintenanceRun forces the circuit's circulator pump on and its valve to
// the open stop for duration regardless of runmode, used by the plant to
// exercise actuators that have sat idle through an entire summer so they
// do not seize.
func (c *Circuit) MaintenanceRun(now timekeep.Tick, duration timekeep.Tick) {
	c.maintenanceUntil = now + duration
}

// Control drives the circuit's valve (if any) toward the target given the
// circuit's measured feed water temperature, and runs the circulator pump.
// It must be called once per iteration, after Logic.
func (c *Circuit) Control(now timekeep.Tick, feedWater units.Temp) error {
	maintenance := !timekeep.AGeB(now, c.maintenanceUntil)
	running := units.Usable(c.target) || maintenance

	// During an OFF consumer_stop_delay hold, the pump step is skipped
	// entirely rather than driven either way: the hold goes straight
	// through to the valve block with no pump decision in between.
	if c.pump != nil && !c.offHold {
		if c.mode == Manual {
			c.pump.Force(now, true)
		} else {
			c.pump.RequestOn(now, running)
		}
		if _, err := c.pump.Update(now); err != nil {
			log.Error().Str("circuit", c.Name).Err(err).Msg("circulator pump update failed")
		}
	}

	if !running {
		return nil
	}
	if c.valve == nil {
		if !units.Usable(feedWater) && c.mode != Manual && !maintenance {
			if c.pump != nil {
				c.pump.Force(now, true)
			}
			return rwerr.New(rwerr.SensorInval, "circuit feed water sensor unusable")
		}
		return nil
	}

	switch {
	case maintenance:
		// Exercise pass: the valve is swept to its open stop regardless of
		// demand so the seat and motor do not seize over an idle season.
		c.valve.RequestOpenFull()
	case c.mode == Manual:
		c.valve.RequestStop()
	case !units.Usable(feedWater):
		// Feed water unreadable: engage the failsafe rather than leaving the
		// valve and pump at whatever they last settled on. Request the valve
		// fully closed and force the pump on so the loop keeps circulating
		// without a trustworthy temperature to mix against.
		if c.pump != nil {
			c.pump.Force(now, true)
		}
		c.valve.RequestCloseFull()
		if _, err := c.valve.Update(now); err != nil {
			return err
		}
		return rwerr.New(rwerr.SensorInval, "circuit feed water sensor unusable")
	default:
		c.valve.ControlTemp(now, c.target, feedWater)
	}
	_, err := c.valve.Update(now)
	return err
}

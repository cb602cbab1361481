// Package dhwt implements domestic hot water tank charge control: a
// top/bottom sensor trip/untrip policy, an overtime lockout that protects
// the heat source from being monopolized by a tank that will not come up
// to temperature, an electric self-heater fallback for when that happens,
// and discharge-protection feed-pump sequencing driven by the inlet
// sensor.
package dhwt

import (
	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// forceOnTripOffset is the fixed 1K reduction applied to the trip
// threshold when a charge has been forced (force_on), regardless of the
// tank's own configured hysteresis.
const forceOnTripOffset = 1.0

// dischargeHysteresis is the 1K band above the tank reference at which
// the feed pump is allowed back on during heat-source charging.
const dischargeHysteresis = 1.0

// Config gathers one tank's static tuning.
type Config struct {
	Target units.Temp

	// TripBelow is how far below Target the cold-trip reference must fall
	// before a charge cycle starts (the tank's hysteresis).
	TripBelow units.Delta
	// UntripAbove is how far above Target the hot-untrip reference must
	// rise before a charge cycle ends.
	UntripAbove units.Delta

	// MaxChargeDuration bounds how long a single charge cycle may run
	// before it is judged to be failing to bring the tank up, and is
	// aborted in favor of the electric failover.
	MaxChargeDuration timekeep.Tick
	// LockoutDuration is how long charging is withheld after an overtime
	// abort, giving the electric heater a clear run without the heat
	// source also fighting for the same tank.
	LockoutDuration timekeep.Tick

	// LimitWinTMax clips the feed temperature requested of the heat
	// source while charging; zero disables the clip.
	LimitWinTMax units.Temp
	// TempInOffset is added to Target to get the requested feed
	// temperature.
	TempInOffset units.Delta

	// ElectricFailover turns the self-heater on unconditionally, rather
	// than off, when both top and bottom sensors are unusable.
	ElectricFailover bool
}

// DHWT is one domestic hot water tank.
type DHWT struct {
	Name string
	Cfg  Config

	feedPump      *actuator.Pump
	recyclePump   *actuator.Pump
	electricRelay *actuator.Relay

	charging       bool
	chargeSince    timekeep.Tick
	lockedUntil    timekeep.Tick
	chargeOvertime bool
	electricOn     bool
	heatRequest    units.Temp

	// forceOn and legionellaOn are set by the caller (scheduler, manual
	// override) ahead of Logic; both are cleared automatically on untrip.
	forceOn      bool
	legionellaOn bool
	recycleOn    bool
	couldSleep   bool
	disabled     bool

	top, bottom, inlet units.Temp
}

// New builds a DHWT bound to its feed pump (draws heat from the plant), an
// optional recycle pump (domestic hot water loop circulation), and an
// optional electric self-heater relay (nil if the tank has none).
func New(name string, cfg Config, feedPump *actuator.Pump, recyclePump *actuator.Pump, electricRelay *actuator.Relay) *DHWT {
	return &DHWT{Name: name, Cfg: cfg, feedPump: feedPump, recyclePump: recyclePump, electricRelay: electricRelay, heatRequest: units.NoRequest}
}

// SetSensors records this iteration's top, bottom and inlet (tid_win)
// sensor readings, ahead of calling Logic. A backend with no inlet sensor
// wired should always report units.TempUnset for it.
func (d *DHWT) SetSensors(top, bottom, inlet units.Temp) {
	d.top, d.bottom, d.inlet = top, bottom, inlet
}

// SetForceOn requests an immediate charge: the cold-trip threshold is
// raised to Target-1K instead of Target-TripBelow. Cleared automatically
// on the next untrip.
func (d *DHWT) SetForceOn(on bool) { d.forceOn = on }

// SetLegionellaOn suppresses the overtime untrip while a legionella
// sanitization charge is in progress, letting the tank run past its
// normal MaxChargeDuration. Cleared automatically on the next untrip.
func (d *DHWT) SetLegionellaOn(on bool) { d.legionellaOn = on }

// SetRecycleOn drives the optional domestic hot water recycle pump,
// independent of the charge trip/untrip state.
func (d *DHWT) SetRecycleOn(on bool) { d.recycleOn = on }

// SetCouldSleep reports whether the plant could sleep this iteration
// (summer, no active demand elsewhere); consulted by the cold-trip branch
// to prefer the electric self-heater over waking the heat source. Like
// the heat source's own could_sleep input, this is necessarily one
// iteration behind: the plant only knows the combined demand, including
// this tank's own request, after this tank's Logic has already run.
func (d *DHWT) SetCouldSleep(could bool) { d.couldSleep = could }

// SetDisabled suspends the tank entirely (the runtime's DHW force-off
// override): an in-progress charge is abandoned and no new one trips until
// re-enabled. The recycle pump is suspended too.
func (d *DHWT) SetDisabled(disabled bool) { d.disabled = disabled }

// Disabled reports whether the tank is currently suspended.
func (d *DHWT) Disabled() bool { return d.disabled }

// ForceOn reports whether a forced charge is currently requested.
func (d *DHWT) ForceOn() bool { return d.forceOn }

// LegionellaOn reports whether a legionella sanitization charge is
// currently in progress.
func (d *DHWT) LegionellaOn() bool { return d.legionellaOn }

// Logic runs one iteration of the trip/untrip/overtime/failover state
// machine. It must be called once per master loop iteration before
// Control.
func (d *DHWT) Logic(now timekeep.Tick) {
	if d.disabled {
		d.charging = false
		d.heatRequest = units.NoRequest
		d.electricOn = false
		return
	}
	if !units.Usable(d.top) && !units.Usable(d.bottom) {
		d.sensorFailsafe()
		return
	}

	if !d.charging {
		d.evaluateTrip(now)
	} else {
		d.evaluateUntrip(now)
	}
}

// sensorFailsafe handles step 1 of the procedure: with both tank sensors
// out, the charge state machine cannot be trusted, so charging stops and
// the self-heater takes the configured fallback position.
func (d *DHWT) sensorFailsafe() {
	d.charging = false
	d.heatRequest = units.NoRequest
	d.electricOn = d.Cfg.ElectricFailover && d.electricRelay != nil
}

func (d *DHWT) evaluateTrip(now timekeep.Tick) {
	if !timekeep.AGeB(now, d.lockedUntil) {
		return
	}

	// Cold-trip reference: bottom if available, else top — the sensor
	// closer to where cold makeup water enters is preferred, since it
	// sees a depleted tank first.
	ref := d.bottom
	if !units.Usable(ref) {
		ref = d.top
	}
	if !units.Usable(ref) {
		return
	}

	trip := d.Cfg.Target.Add(-d.Cfg.TripBelow)
	if d.forceOn {
		trip = d.Cfg.Target.Add(-units.DeltaK(forceOnTripOffset))
	}
	if ref >= trip {
		return
	}

	if d.couldSleep && d.electricRelay != nil {
		d.electricOn = true
	} else {
		d.electricOn = false
		feed := d.Cfg.Target.Add(d.Cfg.TempInOffset)
		if d.Cfg.LimitWinTMax != 0 && feed > d.Cfg.LimitWinTMax {
			feed = d.Cfg.LimitWinTMax
		}
		d.heatRequest = feed
	}
	d.chargeOvertime = false
	d.charging = true
	d.chargeSince = now
}

func (d *DHWT) evaluateUntrip(now timekeep.Tick) {
	// Hot-untrip reference: top if available, else bottom — the mirror of
	// the cold-trip fallback.
	ref := d.top
	if !units.Usable(ref) {
		ref = d.bottom
	}

	overtime := !d.electricOn && !d.legionellaOn && now-d.chargeSince > d.Cfg.MaxChargeDuration
	reached := units.Usable(ref) && ref >= d.Cfg.Target.Add(d.Cfg.UntripAbove)

	if !overtime && !reached {
		return
	}
	if overtime {
		d.chargeOvertime = true
		d.lockedUntil = now + d.Cfg.LockoutDuration
	}

	d.electricOn = false
	d.heatRequest = units.NoRequest
	d.forceOn = false
	d.legionellaOn = false
	d.charging = false
	d.chargeSince = now
}

// HeatRequest returns the temperature this tank wants its heat source to
// supply, or units.NoRequest if it is not currently charging via the heat
// source (idle, or charging electrically).
func (d *DHWT) HeatRequest() units.Temp { return d.heatRequest }

// Charging reports whether the tank is actively drawing heat this
// iteration.
func (d *DHWT) Charging() bool { return d.charging }

// ChargeOvertime reports whether the last charge cycle was aborted for
// running past MaxChargeDuration; cleared the next time a charge trips.
func (d *DHWT) ChargeOvertime() bool { return d.chargeOvertime }

// ElectricOn reports whether the electric self-heater relay is currently
// being requested on, as decided by the last call to Logic.
func (d *DHWT) ElectricOn() bool { return d.electricOn }

// FeedPump returns the tank's feed pump, for persisting its relay
// accounting across restarts.
func (d *DHWT) FeedPump() *actuator.Pump { return d.feedPump }

// RecyclePump returns the tank's recycle pump, or nil if it has none.
func (d *DHWT) RecyclePump() *actuator.Pump { return d.recyclePump }

// ElectricRelay returns the tank's electric self-heater relay, or nil if it
// has none.
func (d *DHWT) ElectricRelay() *actuator.Relay { return d.electricRelay }

// Control drives the feed pump, recycle pump and electric relay to match
// the state Logic just computed.
func (d *DHWT) Control(now timekeep.Tick) error {
	if d.feedPump != nil {
		d.controlFeedPump(now)
		if _, err := d.feedPump.Update(now); err != nil {
			return rwerr.Wrap(rwerr.Hardware, "dhwt feed pump update failed", err)
		}
	}
	if d.recyclePump != nil {
		d.recyclePump.RequestOn(now, d.recycleOn && !d.disabled)
		if _, err := d.recyclePump.Update(now); err != nil {
			return rwerr.Wrap(rwerr.Hardware, "dhwt recycle pump update failed", err)
		}
	}
	if d.electricRelay != nil {
		d.electricRelay.RequestOn(d.electricOn)
		if _, err := d.electricRelay.Update(now); err != nil {
			return rwerr.Wrap(rwerr.Hardware, "dhwt electric heater update failed", err)
		}
	}
	return nil
}

// controlFeedPump sequences the feed pump around the charge state: while
// drawing heat from the heat source, the inlet sensor (tid_win) protects
// against discharging cold water into an already-hot tank; with no inlet
// sensor wired it falls back to running the pump unconditionally rather
// than guessing at an upstream temperature.
func (d *DHWT) controlFeedPump(now timekeep.Tick) {
	ref := d.bottom
	if !units.Usable(ref) {
		ref = d.top
	}

	if d.charging && !d.electricOn {
		if !units.Usable(d.inlet) {
			d.feedPump.Force(now, true)
			return
		}
		switch {
		case units.Usable(ref) && d.inlet < ref:
			d.feedPump.Force(now, false)
		case units.Usable(ref) && d.inlet >= ref.Add(units.DeltaK(dischargeHysteresis)):
			d.feedPump.Force(now, true)
		}
		return
	}

	// Not charging, or charging electrically: cool the feed pump down.
	// A warm feed (inlet already above the tank reference) is allowed to
	// idle down through its own cooldown instead of being force-cut, since
	// there is no cold-discharge risk to guard against.
	if units.Usable(d.inlet) && units.Usable(ref) && d.inlet > ref {
		d.feedPump.RequestOn(now, false)
	} else {
		d.feedPump.Force(now, false)
	}
}

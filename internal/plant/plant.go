// Package plant orchestrates a complete system of circuits, DHW tanks and
// heat sources through the online/offline lifecycle and one run iteration
// at a time, in the fixed order the rest of the core depends on: circuits
// first (so their requests exist), then DHW tanks, then heat sources (which
// see the combined demand: the highest of all circuit and DHW requests; DHW
// requests get no priority over space heating beyond that),
// finally applying the summer-maintenance override that exercises idle
// pumps so they do not seize over a long shutdown season.
package plant

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/circuit"
	"github.com/thatsimonsguy/rwchcd/internal/dhwt"
	"github.com/thatsimonsguy/rwchcd/internal/heatsource"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/outdoor"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// SummerRunInterval is how long a circuit may go without a natural run
// before the plant forces a maintenance run.
const SummerRunInterval = timekeep.Tick(7 * 24 * 3600 * timekeep.Resolution)

// SummerRunDuration is how long a forced maintenance run lasts.
const SummerRunDuration = timekeep.Tick(5 * 60 * timekeep.Resolution)

// FeedWaterReader reads a circuit's feed water sensor by name; supplied by
// the caller since sensor wiring is configuration, not plant logic.
type FeedWaterReader func(circuitName string) units.Temp

// DHWTSensorReader reads a DHWT's top, bottom and inlet (tid_win) sensors
// by name; supplied by the caller for the same reason as FeedWaterReader.
// A DHWT with no inlet sensor wired is expected to always return
// units.TempUnset for it.
type DHWTSensorReader func(dhwtName string) (top, bottom, inlet units.Temp)

// AlarmFunc receives one per-element fault per iteration it persists; the
// caller typically points it at the alarm collector's Raise. Element
// errors never abort a plant iteration, so this is how they surface
// beyond the log.
type AlarmFunc func(code rwerr.Code, msg string)

// AmbientReader reads a circuit's room-temperature sensor by name, for
// circuits configured with a non-zero ambient factor; supplied by the
// caller for the same reason as FeedWaterReader. A circuit with no room
// sensor wired is expected to always return units.TempUnset.
type AmbientReader func(circuitName string) units.Temp

// Plant is a complete orchestrated system.
type Plant struct {
	Registry *hwbackend.Registry

	circuits    []*circuit.Circuit
	dhwts       []*dhwt.DHWT
	heatSources []*heatsource.HeatSource

	feedWater   FeedWaterReader
	dhwtSensors DHWTSensorReader
	ambient     AmbientReader
	alarm       AlarmFunc

	lastSummerRun    timekeep.Tick
	summerRunSeeded  bool
	maintenanceUntil timekeep.Tick

	// dhwtCouldSleep is could_sleep computed at the end of the previous
	// iteration, fed to DHWTs ahead of their own Logic. could_sleep itself
	// depends on this iteration's combined demand, which a DHWT's own
	// request contributes to, so it cannot be computed in time for the
	// same iteration's DHWT Logic — the same one-tick lag already used for
	// the consumer_shift/consumer_stop_delay broadcast to circuits.
	dhwtCouldSleep bool
}

// New builds an empty plant bound to a hardware registry and a feed-water
// reader.
func New(reg *hwbackend.Registry, feedWater FeedWaterReader) *Plant {
	return &Plant{Registry: reg, feedWater: feedWater}
}

// SetDHWTSensorReader wires how the plant samples each DHWT's top/bottom
// sensors before running its charge logic every iteration; without it, a
// DHWT's sensors stay at their zero value and it will never trip a charge.
func (p *Plant) SetDHWTSensorReader(r DHWTSensorReader) { p.dhwtSensors = r }

// SetAmbientReader wires how the plant samples each circuit's room sensor
// before its Logic runs every iteration; without it, circuits configured
// with an ambient factor simply see an unusable reading and skip ambient
// feedback, falling back to pure weather compensation.
func (p *Plant) SetAmbientReader(r AmbientReader) { p.ambient = r }

// SetAlarmFunc wires where per-element faults are raised each iteration.
func (p *Plant) SetAlarmFunc(f AlarmFunc) { p.alarm = f }

func (p *Plant) raise(err error, format string, args ...interface{}) {
	if p.alarm == nil {
		return
	}
	p.alarm(rwerr.CodeOf(err), fmt.Sprintf(format, args...)+": "+err.Error())
}

func (p *Plant) AddCircuit(c *circuit.Circuit)       { p.circuits = append(p.circuits, c) }
func (p *Plant) AddDHWT(d *dhwt.DHWT)                { p.dhwts = append(p.dhwts, d) }
func (p *Plant) AddHeatSource(h *heatsource.HeatSource) { p.heatSources = append(p.heatSources, h) }

func (p *Plant) Circuits() []*circuit.Circuit          { return p.circuits }
func (p *Plant) DHWTs() []*dhwt.DHWT                   { return p.dhwts }
func (p *Plant) HeatSources() []*heatsource.HeatSource { return p.heatSources }

// Online brings every configured backend online. It does not fail fast: it
// attempts every backend and reports a collective error, since a plant with
// one bad sensor backend should still run everything else in degraded mode
// rather than refuse to start at all.
func (p *Plant) Online() error {
	return p.Registry.Online()
}

// Offline takes every backend offline.
func (p *Plant) Offline() error {
	return p.Registry.Offline()
}

// Run executes one complete control iteration: circuits, then DHW tanks,
// then heat sources (seeing the combined request from both), then the
// summer-maintenance pass.
func (p *Plant) Run(now timekeep.Tick, om *outdoor.Model) error {
	outdoorTemp := om.Mixed()

	maintenance := p.updateSummerMaintenance(now, om)

	for _, c := range p.circuits {
		if p.ambient != nil {
			c.SetAmbientTarget(p.ambient(c.Name))
		}
		c.Logic(now, outdoorTemp)
		feed := units.TempUnset
		if p.feedWater != nil {
			feed = p.feedWater(c.Name)
		}
		if err := c.Control(now, feed); err != nil {
			log.Error().Str("circuit", c.Name).Err(err).Msg("circuit control failed")
			p.raise(err, "circuit %s", c.Name)
		}
	}

	for _, d := range p.dhwts {
		if p.dhwtSensors != nil {
			top, bottom, inlet := p.dhwtSensors(d.Name)
			d.SetSensors(top, bottom, inlet)
		}
		d.SetCouldSleep(p.dhwtCouldSleep)
		d.Logic(now)
		if err := d.Control(now); err != nil {
			log.Error().Str("dhwt", d.Name).Err(err).Msg("dhwt control failed")
			p.raise(err, "dhwt %s", d.Name)
		}
	}

	var maxRequest units.Temp = units.NoRequest
	for _, c := range p.circuits {
		maxRequest = units.Max(maxRequest, c.HeatRequest(now))
	}
	for _, d := range p.dhwts {
		maxRequest = units.Max(maxRequest, d.HeatRequest())
	}

	couldSleep := om.Summer() && !units.Usable(maxRequest)
	p.dhwtCouldSleep = couldSleep

	var shiftSum float64
	stopActive := false
	for _, h := range p.heatSources {
		h.SetRequest(maxRequest)
		h.SetCouldSleep(couldSleep)
		target := h.Logic()
		if err := h.Control(now, target); err != nil {
			log.Error().Str("source", h.Name).Err(err).Msg("heat source control failed")
			p.raise(err, "heat source %s", h.Name)
		}
		shiftSum += h.ConsumerShift()
		if h.ConsumerStopActive(now) {
			stopActive = true
		}
	}
	// These are broadcast for the *next* iteration's circuit Logic, the
	// same one-tick lag the consumer_shift feedback already has: within a
	// single iteration, consumer heat requests are computed before the
	// heat source reads them, so the heat source's own reaction to this
	// iteration's demand can only reach circuits on the iteration after.
	for _, c := range p.circuits {
		c.SetConsumerShift(shiftSum)
		c.SetConsumerStopActive(stopActive)
	}

	if maintenance {
		p.exerciseAuxiliaryPumps(now)
	}

	return nil
}

// updateSummerMaintenance opens a SummerRunDuration exercise window once
// per SummerRunInterval while the plant is idle in summer (summer flag set
// and could_sleep from the previous iteration), and reports whether the
// window is currently open. Every circuit gets a MaintenanceRun covering
// the window (its own Control sweeps pump and valve); the remaining plant
// pumps are forced on by exerciseAuxiliaryPumps at the end of each
// iteration inside the window. Outside summer idle the override is
// invisible.
func (p *Plant) updateSummerMaintenance(now timekeep.Tick, om *outdoor.Model) bool {
	if !timekeep.AGeB(now, p.maintenanceUntil) {
		return true // window still open
	}
	if !om.Summer() || !p.dhwtCouldSleep {
		return false
	}
	if p.summerRunSeeded && !timekeep.AGeB(now, p.lastSummerRun+SummerRunInterval) {
		return false
	}
	p.summerRunSeeded = true
	p.lastSummerRun = now
	p.maintenanceUntil = now + SummerRunDuration
	for _, c := range p.circuits {
		c.MaintenanceRun(now, SummerRunDuration)
	}
	log.Info().Msg("starting summer maintenance run")
	return true
}

// exerciseAuxiliaryPumps forces every pump not owned by a circuit (DHWT
// feed and recycle pumps, heat source load pumps) on during the summer
// maintenance window, so no pump in the plant can sit seized through an
// entire cooling season.
func (p *Plant) exerciseAuxiliaryPumps(now timekeep.Tick) {
	run := func(owner string, pm *actuator.Pump) {
		if pm == nil {
			return
		}
		pm.Force(now, true)
		if _, err := pm.Update(now); err != nil {
			log.Error().Str("owner", owner).Err(err).Msg("maintenance pump run failed")
		}
	}
	for _, d := range p.dhwts {
		run(d.Name, d.FeedPump())
		run(d.Name, d.RecyclePump())
	}
	for _, h := range p.heatSources {
		run(h.Name, h.LoadPump())
	}
}

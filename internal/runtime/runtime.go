// Package runtime holds the single process-scoped, read/write-locked
// system state: the overall system mode, the active run mode, and the DHW
// mode, each independently settable and read by every other package
// without needing to thread a
// context object through the whole call graph. Setters are the only paths
// that mutate, and each one validates before applying.
package runtime

import (
	"sync"

	"github.com/thatsimonsguy/rwchcd/internal/circuit"
	"github.com/thatsimonsguy/rwchcd/internal/heatsource"
	"github.com/thatsimonsguy/rwchcd/internal/plant"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
)

// SystemMode is the daemon's top-level operating mode.
type SystemMode int

const (
	SystemAuto SystemMode = iota
	SystemManual
	SystemOff
)

func (m SystemMode) String() string {
	switch m {
	case SystemManual:
		return "manual"
	case SystemOff:
		return "off"
	default:
		return "auto"
	}
}

// DHWMode overrides every DHWT's behavior at once, independent of each
// tank's own charge state machine.
type DHWMode int

const (
	DHWAuto DHWMode = iota
	DHWForceCharge
	DHWForceOff
)

// Runtime is the process-wide singleton. Zero value is not usable; use
// New.
type Runtime struct {
	mu sync.RWMutex

	systemMode SystemMode
	runMode    circuit.RunMode
	dhwMode    DHWMode

	plant *plant.Plant
}

// New builds a runtime bound to a plant, starting in automatic system mode
// with every consumer in comfort.
func New(p *plant.Plant) *Runtime {
	return &Runtime{plant: p, systemMode: SystemAuto, runMode: circuit.Comfort, dhwMode: DHWAuto}
}

// Plant returns the owned plant.
func (r *Runtime) Plant() *plant.Plant { return r.plant }

// SystemMode returns the current system mode.
func (r *Runtime) SystemMode() SystemMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.systemMode
}

// SetSystemMode validates and applies a new system mode.
func (r *Runtime) SetSystemMode(m SystemMode) error {
	if m < SystemAuto || m > SystemOff {
		return rwerr.New(rwerr.InvalidMode, "unknown system mode")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systemMode = m
	return nil
}

// RunMode returns the current global runmode.
func (r *Runtime) RunMode() circuit.RunMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runMode
}

// SetRunMode validates the new runmode and fans it out to every circuit
// and heat source. Individual circuits can still be overridden afterwards
// (the weekly scheduler does exactly that); this is the plant-wide
// baseline.
func (r *Runtime) SetRunMode(m circuit.RunMode) error {
	if m < circuit.Off || m > circuit.DHWOnly {
		return rwerr.New(rwerr.InvalidMode, "unknown runmode")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runMode = m
	for _, c := range r.plant.Circuits() {
		if err := c.SetMode(m); err != nil {
			return err
		}
	}
	hm := heatSourceMode(m)
	for _, h := range r.plant.HeatSources() {
		if err := h.SetMode(hm); err != nil {
			return err
		}
	}
	return nil
}

// heatSourceMode maps the consumer runmode onto the heat source's own mode
// set; the two enumerations name the same states.
func heatSourceMode(m circuit.RunMode) heatsource.Mode {
	switch m {
	case circuit.Off:
		return heatsource.Off
	case circuit.Manual:
		return heatsource.Manual
	case circuit.Eco:
		return heatsource.Eco
	case circuit.FrostFree:
		return heatsource.FrostFree
	case circuit.DHWOnly:
		return heatsource.DHWOnly
	default:
		return heatsource.Comfort
	}
}

// DHWMode returns the current DHW override mode.
func (r *Runtime) DHWMode() DHWMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dhwMode
}

// SetDHWMode validates the new DHW override and fans it out to every tank:
// force-charge trips each tank at its reduced threshold, force-off
// suspends them entirely, auto returns them to their own state machines.
func (r *Runtime) SetDHWMode(m DHWMode) error {
	if m < DHWAuto || m > DHWForceOff {
		return rwerr.New(rwerr.InvalidMode, "unknown dhw mode")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dhwMode = m
	for _, d := range r.plant.DHWTs() {
		switch m {
		case DHWForceCharge:
			d.SetDisabled(false)
			d.SetForceOn(true)
		case DHWForceOff:
			d.SetDisabled(true)
		default:
			d.SetDisabled(false)
			d.SetForceOn(false)
		}
	}
	return nil
}

// Running reports whether the plant should be driven at all this
// iteration; SystemOff suspends control output entirely (e.g. for
// planned maintenance) without tearing down the process.
func (r *Runtime) Running() bool {
	return r.SystemMode() != SystemOff
}

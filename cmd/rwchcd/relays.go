package main

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/config"
	"github.com/thatsimonsguy/rwchcd/internal/metrics"
	"github.com/thatsimonsguy/rwchcd/internal/store"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

// allRelays walks the plant and returns every physical relay it owns,
// including the two driving each mixing valve, so the caller can persist or
// restore their dwell accounting without needing to know the plant's shape.
func allRelays(sys *config.System) []*actuator.Relay {
	var out []*actuator.Relay
	for _, c := range sys.Plant.Circuits() {
		if p := c.Pump(); p != nil {
			out = append(out, p.Relay)
		}
		if v := c.Valve(); v != nil {
			out = append(out, v.OpenRelay(), v.CloseRelay())
		}
	}
	for _, d := range sys.Plant.DHWTs() {
		if p := d.FeedPump(); p != nil {
			out = append(out, p.Relay)
		}
		if p := d.RecyclePump(); p != nil {
			out = append(out, p.Relay)
		}
		if r := d.ElectricRelay(); r != nil {
			out = append(out, r)
		}
	}
	for _, h := range sys.Plant.HeatSources() {
		out = append(out, h.Burner())
		if p := h.LoadPump(); p != nil {
			out = append(out, p.Relay)
		}
	}
	return out
}

// restoreRelays loads every relay's persisted dwell accounting before the
// plant goes online, so cycle counts and accumulated on/off time survive a
// restart. A relay with no saved row is left at its constructed zero state.
func restoreRelays(sys *config.System, st *store.Store) {
	for _, r := range allRelays(sys) {
		saved, ok, err := st.LoadRelay("plant", r.Name())
		if err != nil {
			log.Error().Err(err).Str("relay", r.Name()).Msg("failed to load relay state")
			continue
		}
		if !ok {
			continue
		}
		r.Restore(saved)
	}
}

// persistRelays snapshots every relay's dwell accounting to the store. It is
// called periodically rather than on every master loop iteration, since the
// accounting only needs to survive a restart, not every tick.
func persistRelays(sys *config.System, st *store.Store) {
	for _, r := range allRelays(sys) {
		if err := st.SaveRelay("plant", r.Name(), r.Snapshot()); err != nil {
			log.Error().Err(err).Str("relay", r.Name()).Msg("failed to save relay state")
		}
	}
}

// publishRelayMetrics reports every relay's cumulative accounting.
func publishRelayMetrics(sys *config.System, met *metrics.Registry) {
	for _, r := range allRelays(sys) {
		on, off := r.Accumulated()
		met.SetRelay(r.Name(), timekeep.TkToSec(on), timekeep.TkToSec(off), r.Cycles())
	}
}

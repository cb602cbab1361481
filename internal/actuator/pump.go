package actuator

import "github.com/thatsimonsguy/rwchcd/internal/timekeep"

// Pump is a relay with a stop cooldown: a non-forced request to stop is
// deferred until the pump has been running for at least the cooldown, so
// the loop keeps circulating long enough to move residual heat out of the
// exchanger before the pump actually stops. A forced stop (or start) cuts
// straight through to the relay.
type Pump struct {
	*Relay
	cooldown timekeep.Tick
}

// NewPump wraps a relay with a stop cooldown.
func NewPump(r *Relay, cooldown timekeep.Tick) *Pump {
	return &Pump{Relay: r, cooldown: cooldown}
}

// RequestOn requests pump state. A non-forced off within the cooldown of
// the last start is not applied yet; callers re-request every iteration,
// so the stop lands naturally once the remaining cooldown has run out.
func (p *Pump) RequestOn(now timekeep.Tick, on bool) {
	if !on && p.Relay.IsOn() && !timekeep.AGeB(now, p.Relay.Since()+p.cooldown) {
		return
	}
	p.Relay.RequestOn(on)
}

// Force applies the requested state immediately, bypassing the cooldown:
// discharge protection must be able to cut a pump the same iteration it
// detects cold water flowing backwards into a hot tank.
func (p *Pump) Force(now timekeep.Tick, on bool) {
	p.Relay.RequestOn(on)
}

package actuator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend/simbackend"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

func newTestPump(t *testing.T, cooldown timekeep.Tick) *actuator.Pump {
	sim := simbackend.New()
	sim.AddOutput("p")
	reg := hwbackend.NewRegistry()
	require.NoError(t, reg.Register("sim", sim))
	require.NoError(t, reg.Online())
	h, err := reg.ResolveOutput("sim", "p")
	require.NoError(t, err)
	r := actuator.NewRelay("p", h, 0, 0, 0)
	return actuator.NewPump(r, cooldown)
}

func TestPumpNonForcedStopWaitsOutCooldown(t *testing.T) {
	p := newTestPump(t, 100)
	p.RequestOn(0, true)
	_, err := p.Update(1)
	require.NoError(t, err)
	require.True(t, p.IsOn())

	// A plain stop request within the cooldown keeps the pump running.
	p.RequestOn(10, false)
	_, err = p.Update(10)
	require.NoError(t, err)
	assert.True(t, p.IsOn(), "cooldown should keep the pump circulating")

	// Re-requested after the cooldown has run out, the stop lands.
	p.RequestOn(102, false)
	_, err = p.Update(102)
	require.NoError(t, err)
	assert.False(t, p.IsOn())
}

func TestPumpForcedStopCutsImmediately(t *testing.T) {
	p := newTestPump(t, 100)
	p.RequestOn(0, true)
	_, err := p.Update(1)
	require.NoError(t, err)
	require.True(t, p.IsOn())

	p.Force(2, false)
	_, err = p.Update(2)
	require.NoError(t, err)
	assert.False(t, p.IsOn(), "forced stop must not wait out the cooldown")
}

func TestPumpForceOnStartsImmediately(t *testing.T) {
	p := newTestPump(t, 100)
	p.Force(0, true)
	_, err := p.Update(1)
	require.NoError(t, err)
	assert.True(t, p.IsOn())
}

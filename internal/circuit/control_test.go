package circuit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/circuit"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend/simbackend"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

type testActuators struct {
	pump  *actuator.Pump
	valve *actuator.Valve
}

func newTestActuators(t *testing.T) testActuators {
	sim := simOutputs(t, "pump", "open", "close")
	pump := actuator.NewPump(actuator.NewRelay("pump", sim["pump"], 0, 0, 0), 0)
	openR := actuator.NewRelay("open", sim["open"], 0, 0, 0)
	closeR := actuator.NewRelay("close", sim["close"], 0, 0, 0)
	valve := actuator.NewValve("valve", openR, closeR, 100, actuator.BangBang,
		actuator.ControlConfig{TDeadzone: units.DeltaK(2)}, 0)
	return testActuators{pump: pump, valve: valve}
}

func simOutputs(t *testing.T, names ...string) map[string]hwbackend.Handle {
	sim := simbackend.New()
	for _, n := range names {
		sim.AddOutput(n)
	}
	reg := hwbackend.NewRegistry()
	require.NoError(t, reg.Register("sim", sim))
	require.NoError(t, reg.Online())
	out := make(map[string]hwbackend.Handle, len(names))
	for _, n := range names {
		h, err := reg.ResolveOutput("sim", n)
		require.NoError(t, err)
		out[n] = h
	}
	return out
}

func TestCircuitControlDrivesValveTowardTarget(t *testing.T) {
	acts := newTestActuators(t)
	c := circuit.New("c1", testConfig(), acts.valve, acts.pump, 0)
	require.NoError(t, c.SetMode(circuit.Comfort))

	c.Logic(10, units.CelsiusToTemp(-5))
	require.True(t, units.Usable(c.Target()))

	// Feed water well below target: valve opens to mix in more heat.
	require.NoError(t, c.Control(10, units.CelsiusToTemp(25)))
	require.NoError(t, c.Control(20, units.CelsiusToTemp(25)))
	assert.True(t, acts.pump.IsOn())
	assert.Greater(t, acts.valve.Position(), 0)
}

func TestCircuitControlFailsafeOnUnusableFeedWater(t *testing.T) {
	acts := newTestActuators(t)
	c := circuit.New("c1", testConfig(), acts.valve, acts.pump, 0)
	require.NoError(t, c.SetMode(circuit.Comfort))
	c.Logic(10, units.CelsiusToTemp(-5))

	err := c.Control(10, units.TempDiscon)
	require.Error(t, err)
	assert.True(t, rwerr.Is(err, rwerr.SensorInval))
	assert.True(t, acts.pump.IsOn(), "failsafe forces the circulator on")
	assert.Equal(t, actuator.Close, acts.valve.RequestAction(), "failsafe sends the valve to its closed stop")
}

func TestCircuitControlManualStopsValveAndForcesPump(t *testing.T) {
	acts := newTestActuators(t)
	cfg := testConfig()
	c := circuit.New("c1", cfg, acts.valve, acts.pump, 0)
	require.NoError(t, c.SetMode(circuit.Manual))
	c.Logic(10, units.CelsiusToTemp(5))

	require.NoError(t, c.Control(10, units.CelsiusToTemp(25)))
	assert.True(t, acts.pump.IsOn())
	assert.Equal(t, actuator.Stop, acts.valve.RequestAction())
}

func TestCircuitControlMaintenanceSweepsValveOpen(t *testing.T) {
	acts := newTestActuators(t)
	c := circuit.New("c1", testConfig(), acts.valve, acts.pump, 0)
	require.NoError(t, c.SetMode(circuit.Off))

	c.MaintenanceRun(0, timekeep.SecToTk(300))
	c.Logic(10, units.CelsiusToTemp(25))
	require.NoError(t, c.Control(10, units.TempUnset))
	assert.True(t, acts.pump.IsOn(), "maintenance forces the idle pump on")
	assert.Equal(t, actuator.Open, acts.valve.RequestAction(), "maintenance sweeps the valve to its open stop")

	// Outside the window the override is invisible again.
	c.Logic(timekeep.SecToTk(400), units.CelsiusToTemp(25))
	require.NoError(t, c.Control(timekeep.SecToTk(400), units.TempUnset))
	assert.False(t, acts.pump.IsOn())
}

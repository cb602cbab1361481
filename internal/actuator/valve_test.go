package actuator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend/simbackend"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

func newTestValve(t *testing.T, law actuator.Law, eteTime timekeep.Tick, cfg actuator.ControlConfig) *actuator.Valve {
	sim := simbackend.New()
	sim.AddOutput("open")
	sim.AddOutput("close")
	reg := hwbackend.NewRegistry()
	require.NoError(t, reg.Register("sim", sim))
	require.NoError(t, reg.Online())
	ho, err := reg.ResolveOutput("sim", "open")
	require.NoError(t, err)
	hc, err := reg.ResolveOutput("sim", "close")
	require.NoError(t, err)
	openR := actuator.NewRelay("open", ho, 0, 0, 0)
	closeR := actuator.NewRelay("close", hc, 0, 0, 0)
	return actuator.NewValve("v", openR, closeR, eteTime, law, cfg, 0)
}

func TestValveFullOpenDrivesIntoEndStop(t *testing.T) {
	v := newTestValve(t, actuator.BangBang, 100, actuator.ControlConfig{})
	v.RequestOpenFull()
	var now timekeep.Tick
	for i := 0; i < 40; i++ {
		now += 10
		_, err := v.Update(now)
		require.NoError(t, err)
		v.RequestOpenFull() // keep re-requesting, as a failsafe caller would
	}
	assert.Equal(t, 1000, v.Position())
	assert.True(t, v.TruePos(), "3x travel time into the stop confirms the position")
}

func TestValveIntegratesPartialPosition(t *testing.T) {
	v := newTestValve(t, actuator.BangBang, 1000, actuator.ControlConfig{})
	v.RequestCourse(actuator.Open, 500)
	_, err := v.Update(100)
	require.NoError(t, err)
	pos, err := v.Update(200)
	require.NoError(t, err)
	assert.Equal(t, 100, pos, "100 ticks of a 1000-tick travel is 10% of full range")
}

func TestValveStopsWhenCourseExhausted(t *testing.T) {
	v := newTestValve(t, actuator.BangBang, 100, actuator.ControlConfig{})
	v.RequestCourse(actuator.Open, 200) // 20% of travel = 20 ticks of drive
	var now timekeep.Tick
	for i := 0; i < 10; i++ {
		now += 5
		_, err := v.Update(now)
		require.NoError(t, err)
	}
	assert.Equal(t, actuator.Stop, v.RequestAction())
	assert.InDelta(t, 200, v.Position(), 50)
}

func TestValveBangBangOpensOnColdOutput(t *testing.T) {
	v := newTestValve(t, actuator.BangBang, 100, actuator.ControlConfig{TDeadzone: units.DeltaK(2)})
	v.ControlTemp(0, units.CelsiusToTemp(50), units.CelsiusToTemp(40))
	assert.Equal(t, actuator.Open, v.RequestAction())

	v.ControlTemp(1, units.CelsiusToTemp(50), units.CelsiusToTemp(60))
	assert.Equal(t, actuator.Close, v.RequestAction())

	v.ControlTemp(2, units.CelsiusToTemp(50), units.CelsiusToTemp(50.5))
	assert.Equal(t, actuator.Stop, v.RequestAction(), "inside the dead-zone the valve is left alone")
}

func TestValveSuccessiveApproximationStepsByFixedAmount(t *testing.T) {
	cfg := actuator.ControlConfig{
		TDeadzone:      units.DeltaK(2),
		SampleInterval: timekeep.SecToTk(10),
		AmountPct:      5,
	}
	v := newTestValve(t, actuator.SuccessiveApproximation, 1000, cfg)

	v.ControlTemp(0, units.CelsiusToTemp(50), units.CelsiusToTemp(40))
	require.Equal(t, actuator.Open, v.RequestAction())

	// Drive until the 5% course is exhausted; the next decision may not be
	// taken before the sample interval has elapsed.
	var now timekeep.Tick
	for i := 0; i < 30; i++ {
		now += 5
		_, err := v.Update(now)
		require.NoError(t, err)
		v.ControlTemp(now, units.CelsiusToTemp(50), units.CelsiusToTemp(40))
	}
	assert.InDelta(t, 100, v.Position(), 60, "sampled 5%% steps, not a continuous full-speed drive")
}

func TestValvePIJacketingSendsValveToEndStops(t *testing.T) {
	cfg := actuator.ControlConfig{
		TempInLow:      units.CelsiusToTemp(20),
		TempInHigh:     units.CelsiusToTemp(80),
		SampleInterval: timekeep.SecToTk(1),
		Tu:             18,
	}
	v := newTestValve(t, actuator.PIVelocity, 100, cfg)

	v.ControlTemp(timekeep.SecToTk(10), units.CelsiusToTemp(15), units.CelsiusToTemp(40))
	assert.Equal(t, actuator.Close, v.RequestAction(), "target below the inlet span closes hard")

	v.ControlTemp(timekeep.SecToTk(20), units.CelsiusToTemp(85), units.CelsiusToTemp(40))
	assert.Equal(t, actuator.Open, v.RequestAction(), "target above the inlet span opens hard")
}

func TestValvePIVelocityConvergesOnTarget(t *testing.T) {
	cfg := actuator.ControlConfig{
		TDeadzone:      units.DeltaK(1),
		DeadbandPct:    1,
		SampleInterval: timekeep.SecToTk(2),
		TempInLow:      units.CelsiusToTemp(20),
		TempInHigh:     units.CelsiusToTemp(80),
		Tu:             18,
	}
	v := newTestValve(t, actuator.PIVelocity, timekeep.SecToTk(120), cfg)

	// Crude plant model: output temperature tracks valve position across
	// the inlet span, so a 50C target wants the valve about half open.
	output := units.CelsiusToTemp(30)
	target := units.CelsiusToTemp(50)
	var now timekeep.Tick
	for i := 0; i < 600; i++ {
		now += timekeep.SecToTk(1)
		v.ControlTemp(now, target, output)
		_, err := v.Update(now)
		require.NoError(t, err)
		output = units.CelsiusToTemp(20 + 60*float64(v.Position())/1000)
	}
	assert.InDelta(t, 50.0, units.TempToCelsius(output), 2.0)
}

func TestValveNeverDrivesBothRelaysAtOnce(t *testing.T) {
	v := newTestValve(t, actuator.BangBang, 100, actuator.ControlConfig{})
	var now timekeep.Tick
	for i := 0; i < 20; i++ {
		now += 10
		if i%2 == 0 {
			v.ControlTemp(now, units.CelsiusToTemp(60), units.CelsiusToTemp(30))
		} else {
			v.ControlTemp(now, units.CelsiusToTemp(30), units.CelsiusToTemp(60))
		}
		_, err := v.Update(now)
		require.NoError(t, err)
		open := v.OpenRelay().IsOn()
		closed := v.CloseRelay().IsOn()
		assert.False(t, open && closed, "break-before-make violated")
	}
}

func TestValvePositionStaysInRange(t *testing.T) {
	v := newTestValve(t, actuator.BangBang, 50, actuator.ControlConfig{})
	var now timekeep.Tick
	for i := 0; i < 100; i++ {
		now += 10
		v.RequestCloseFull()
		_, err := v.Update(now)
		require.NoError(t, err)
		pos := v.Position()
		assert.GreaterOrEqual(t, pos, 0)
		assert.LessOrEqual(t, pos, 1000)
	}
}

func TestValveUnusableTemperaturesStopTheValve(t *testing.T) {
	v := newTestValve(t, actuator.BangBang, 100, actuator.ControlConfig{})
	v.ControlTemp(0, units.CelsiusToTemp(50), units.CelsiusToTemp(30))
	require.Equal(t, actuator.Open, v.RequestAction())
	v.ControlTemp(1, units.CelsiusToTemp(50), units.TempDiscon)
	assert.Equal(t, actuator.Stop, v.RequestAction())
}

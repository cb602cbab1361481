package dhwt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/dhwt"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend/simbackend"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

func testConfig() dhwt.Config {
	return dhwt.Config{
		Target:            units.CelsiusToTemp(55),
		TripBelow:         units.DeltaK(5),
		UntripAbove:       units.DeltaK(0),
		MaxChargeDuration: timekeep.SecToTk(3600),
		LockoutDuration:   timekeep.SecToTk(1800),
	}
}

func testPump(t *testing.T, cooldown timekeep.Tick) *actuator.Pump {
	sim := simbackend.New()
	sim.AddOutput("feed")
	reg := hwbackend.NewRegistry()
	require.NoError(t, reg.Register("sim", sim))
	require.NoError(t, reg.Online())
	h, err := reg.ResolveOutput("sim", "feed")
	require.NoError(t, err)
	r := actuator.NewRelay("feed", h, 0, 0, 0)
	return actuator.NewPump(r, cooldown)
}

func testRelay(t *testing.T) *actuator.Relay {
	sim := simbackend.New()
	sim.AddOutput("electric")
	reg := hwbackend.NewRegistry()
	require.NoError(t, reg.Register("sim", sim))
	require.NoError(t, reg.Online())
	h, err := reg.ResolveOutput("sim", "electric")
	require.NoError(t, err)
	return actuator.NewRelay("electric", h, 0, 0, 0)
}

func TestDHWTTripsOnLowBottomSensor(t *testing.T) {
	d := dhwt.New("t1", testConfig(), testPump(t, 60), nil, nil)
	d.SetSensors(units.CelsiusToTemp(55), units.CelsiusToTemp(45), units.TempUnset)
	d.Logic(0)
	assert.True(t, d.Charging())
	assert.True(t, units.Usable(d.HeatRequest()))
}

func TestDHWTUntripsOnTopSensorSatisfied(t *testing.T) {
	d := dhwt.New("t1", testConfig(), testPump(t, 60), nil, nil)
	d.SetSensors(units.CelsiusToTemp(45), units.CelsiusToTemp(40), units.TempUnset)
	d.Logic(0)
	require.True(t, d.Charging())

	d.SetSensors(units.CelsiusToTemp(56), units.CelsiusToTemp(56), units.TempUnset)
	d.Logic(1)
	assert.False(t, d.Charging())
	assert.Equal(t, units.NoRequest, d.HeatRequest())
}

func TestDHWTOvertimeLocksOutThenAllowsElectricOnceCooldownElapses(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChargeDuration = timekeep.SecToTk(100)
	cfg.LockoutDuration = timekeep.SecToTk(200)
	er := testRelay(t)
	d := dhwt.New("t1", cfg, testPump(t, 60), nil, er)

	d.SetSensors(units.TempDiscon, units.CelsiusToTemp(30), units.TempUnset)
	d.Logic(0)
	require.True(t, d.Charging())

	d.Logic(timekeep.SecToTk(150)) // past MaxChargeDuration, still unsatisfied
	assert.False(t, d.Charging())
	assert.True(t, d.ChargeOvertime())
	require.NoError(t, d.Control(timekeep.SecToTk(150)))
	assert.False(t, er.IsOn(), "self-heater stays off on untrip until a new trip decides otherwise")

	// still locked out: bottom sensor looks satisfiable but lockout holds
	d.SetSensors(units.TempDiscon, units.CelsiusToTemp(20), units.TempUnset)
	d.Logic(timekeep.SecToTk(200))
	assert.False(t, d.Charging())

	// lockout has lapsed and the plant could sleep: the next trip prefers
	// the self-heater over waking the heat source.
	d.SetCouldSleep(true)
	d.Logic(timekeep.SecToTk(400))
	assert.True(t, d.Charging())
	assert.True(t, d.ElectricOn())
	assert.Equal(t, units.NoRequest, d.HeatRequest(), "electric charges never publish a heat_request")
	require.NoError(t, d.Control(timekeep.SecToTk(400)))
	assert.True(t, er.IsOn())
}

func TestDHWTSensorFailsafeRespectsElectricFailover(t *testing.T) {
	cfg := testConfig()
	cfg.ElectricFailover = true
	er := testRelay(t)
	d := dhwt.New("t1", cfg, testPump(t, 60), nil, er)

	d.SetSensors(units.TempDiscon, units.TempDiscon, units.TempUnset)
	d.Logic(0)
	assert.False(t, d.Charging())
	assert.True(t, d.ElectricOn())
	require.NoError(t, d.Control(0))
	assert.True(t, er.IsOn())
}

func TestDHWTSensorFailsafeWithoutElectricFailoverTurnsHeaterOff(t *testing.T) {
	er := testRelay(t)
	d := dhwt.New("t1", testConfig(), testPump(t, 60), nil, er) // ElectricFailover defaults false
	d.SetSensors(units.TempDiscon, units.TempDiscon, units.TempUnset)
	d.Logic(0)
	assert.False(t, d.ElectricOn())
}

func TestDHWTForceOnLowersTripThreshold(t *testing.T) {
	d := dhwt.New("t1", testConfig(), testPump(t, 60), nil, nil) // TripBelow=5K, so normal trip is 50C
	d.SetForceOn(true)
	// 52C is above the normal 50C trip point but below the force_on 54C point.
	d.SetSensors(units.TempUnset, units.CelsiusToTemp(52), units.TempUnset)
	d.Logic(0)
	assert.True(t, d.Charging(), "force_on should trip at target-1K instead of target-hysteresis")
}

func TestDHWTLegionellaSuppressesOvertimeUntrip(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChargeDuration = timekeep.SecToTk(100)
	d := dhwt.New("t1", cfg, testPump(t, 60), nil, nil)
	d.SetLegionellaOn(true)
	d.SetSensors(units.TempUnset, units.CelsiusToTemp(30), units.TempUnset)
	d.Logic(0)
	require.True(t, d.Charging())

	d.Logic(timekeep.SecToTk(150)) // well past MaxChargeDuration
	assert.True(t, d.Charging(), "legionella charge should not be cut short by the overtime lockout")
}

func TestDHWTColdTripFallsBackToTopWhenBottomUnusable(t *testing.T) {
	d := dhwt.New("t1", testConfig(), testPump(t, 60), nil, nil)
	d.SetSensors(units.CelsiusToTemp(45), units.TempDiscon, units.TempUnset) // bottom out, top below trip
	d.Logic(0)
	assert.True(t, d.Charging())
}

func TestDHWTHotUntripFallsBackToBottomWhenTopUnusable(t *testing.T) {
	d := dhwt.New("t1", testConfig(), testPump(t, 60), nil, nil)
	d.SetSensors(units.TempUnset, units.CelsiusToTemp(40), units.TempUnset)
	d.Logic(0)
	require.True(t, d.Charging())

	d.SetSensors(units.TempDiscon, units.CelsiusToTemp(56), units.TempUnset) // top out, bottom satisfied
	d.Logic(1)
	assert.False(t, d.Charging())
}

func TestDHWTFeedPumpRunsWhileChargingAndCoolsDownAfter(t *testing.T) {
	d := dhwt.New("t1", testConfig(), testPump(t, 600), nil, nil)
	d.SetSensors(units.CelsiusToTemp(50), units.CelsiusToTemp(40), units.CelsiusToTemp(60))
	d.Logic(0)
	require.NoError(t, d.Control(0))
	assert.True(t, d.Charging())

	d.SetSensors(units.CelsiusToTemp(60), units.CelsiusToTemp(60), units.CelsiusToTemp(60))
	d.Logic(1)
	require.NoError(t, d.Control(1))
	assert.False(t, d.Charging())
}

func TestDHWTInletDischargeProtectionForcesFeedPumpOffWhenColderThanTank(t *testing.T) {
	pump := testPump(t, 600)
	d := dhwt.New("t1", testConfig(), pump, nil, nil)
	d.SetSensors(units.CelsiusToTemp(50), units.CelsiusToTemp(40), units.CelsiusToTemp(30)) // inlet colder than bottom ref
	d.Logic(0)
	require.True(t, d.Charging())
	require.NoError(t, d.Control(0))
	assert.False(t, pump.IsOn(), "a cold inlet discharging into the tank should force the feed pump off")
}

func TestDHWTInletDischargeProtectionRunsPumpWhenNoInletSensorWired(t *testing.T) {
	pump := testPump(t, 600)
	d := dhwt.New("t1", testConfig(), pump, nil, nil)
	d.SetSensors(units.CelsiusToTemp(50), units.CelsiusToTemp(40), units.TempUnset)
	d.Logic(0)
	require.True(t, d.Charging())
	require.NoError(t, d.Control(0))
	assert.True(t, pump.IsOn(), "with no inlet sensor wired the pump runs unconditionally rather than guessing")
}

func TestDHWTRecyclePumpFollowsRecycleOn(t *testing.T) {
	recycle := testPump(t, 0)
	d := dhwt.New("t1", testConfig(), testPump(t, 60), recycle, nil)
	d.SetSensors(units.CelsiusToTemp(60), units.CelsiusToTemp(60), units.TempUnset)

	d.SetRecycleOn(true)
	d.Logic(0)
	require.NoError(t, d.Control(0))
	assert.True(t, recycle.IsOn())

	d.SetRecycleOn(false)
	d.Logic(1)
	require.NoError(t, d.Control(1))
	assert.False(t, recycle.IsOn())
}

func TestDHWTChargeOvertimeClearsOnNextTrip(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChargeDuration = timekeep.SecToTk(100)
	cfg.LockoutDuration = timekeep.SecToTk(200)
	d := dhwt.New("t1", cfg, testPump(t, 60), nil, nil)

	d.SetSensors(units.TempUnset, units.CelsiusToTemp(30), units.TempUnset)
	d.Logic(0)
	require.True(t, d.Charging())
	d.Logic(timekeep.SecToTk(150))
	require.True(t, d.ChargeOvertime())

	// Lockout lapses, tank is still cold: the new trip clears the flag.
	d.Logic(timekeep.SecToTk(400))
	assert.True(t, d.Charging())
	assert.False(t, d.ChargeOvertime())
}

func TestDHWTDisabledSuspendsChargeAndRecycle(t *testing.T) {
	recycle := testPump(t, 0)
	d := dhwt.New("t1", testConfig(), testPump(t, 60), recycle, nil)
	d.SetRecycleOn(true)
	d.SetSensors(units.CelsiusToTemp(45), units.CelsiusToTemp(40), units.TempUnset)
	d.Logic(0)
	require.NoError(t, d.Control(0))
	require.True(t, d.Charging())
	require.True(t, recycle.IsOn())

	d.SetDisabled(true)
	d.Logic(1)
	require.NoError(t, d.Control(1))
	assert.False(t, d.Charging())
	assert.Equal(t, units.NoRequest, d.HeatRequest())
	assert.False(t, recycle.IsOn())

	d.SetDisabled(false)
	d.Logic(2)
	assert.True(t, d.Charging(), "re-enabling lets the state machine trip again")
}

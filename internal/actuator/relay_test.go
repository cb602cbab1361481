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

func newTestRelay(t *testing.T, minOn, minOff timekeep.Tick) (*actuator.Relay, *simbackend.Backend, hwbackend.ID) {
	sim := simbackend.New()
	id := sim.AddOutput("r")
	reg := hwbackend.NewRegistry()
	require.NoError(t, reg.Register("sim", sim))
	require.NoError(t, reg.Online())
	h, err := reg.ResolveOutput("sim", "r")
	require.NoError(t, err)
	return actuator.NewRelay("r", h, minOn, minOff, 0), sim, id
}

func TestRelayTurnsOnImmediatelyWhenDwellSatisfied(t *testing.T) {
	r, sim, id := newTestRelay(t, 0, 0)
	r.RequestOn(true)
	tr, err := r.Update(1)
	require.NoError(t, err)
	assert.Equal(t, actuator.TurnedOn, tr)
	assert.True(t, r.IsOn())
	assert.True(t, sim.State(id))
}

func TestRelayRespectsMinDwell(t *testing.T) {
	r, _, _ := newTestRelay(t, 50, 50)
	r.RequestOn(true)
	tr, err := r.Update(1)
	require.NoError(t, err)
	assert.Equal(t, actuator.TurnedOn, tr)

	// immediately request off again; minOn dwell (50 ticks) not satisfied
	r.RequestOn(false)
	tr, err = r.Update(2)
	require.NoError(t, err)
	assert.Equal(t, actuator.NoChange, tr)
	assert.True(t, r.IsOn())

	tr, err = r.Update(60)
	require.NoError(t, err)
	assert.Equal(t, actuator.TurnedOff, tr)
	assert.False(t, r.IsOn())
}

func TestRelayAccumulatesOnAndOffTime(t *testing.T) {
	r, _, _ := newTestRelay(t, 0, 0)
	r.RequestOn(true)
	_, err := r.Update(10)
	require.NoError(t, err)
	_, err = r.Update(20)
	require.NoError(t, err)
	// Off from creation until the switch at tick 10, then on until tick 20.
	on, off := r.Accumulated()
	assert.Equal(t, timekeep.Tick(10), on)
	assert.Equal(t, timekeep.Tick(10), off)
}

func TestRelayRestoreReinstatesAccounting(t *testing.T) {
	r, _, _ := newTestRelay(t, 0, 0)
	r.Restore(actuator.Saved{IsOn: true, Since: 100, CumOn: 500, Cycles: 3})
	assert.True(t, r.IsOn())
	assert.Equal(t, 3, r.Cycles())
	on, _ := r.Accumulated()
	assert.Equal(t, timekeep.Tick(500), on)
}

func TestRelayAccountingSumsToElapsedTime(t *testing.T) {
	r, _, _ := newTestRelay(t, 0, 0)
	var now timekeep.Tick
	for i := 0; i < 50; i++ {
		now += 7
		r.RequestOn(i%3 == 0)
		_, err := r.Update(now)
		require.NoError(t, err)
	}
	on, off := r.Accumulated()
	assert.Equal(t, now, on+off, "cumulated on + off must account for every tick since creation")
}

package outdoor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/rwchcd/internal/outdoor"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

func TestFirstSampleSeedsBothFilters(t *testing.T) {
	m := outdoor.NewModel(600, 3600, units.CelsiusToTemp(18))
	m.Update(units.CelsiusToTemp(5), 0)
	assert.InDelta(t, 5.0, units.TempToCelsius(m.Mixed()), 0.01)
	assert.InDelta(t, 5.0, units.TempToCelsius(m.Attenuated()), 0.01)
}

func TestMixedTracksFasterThanAttenuated(t *testing.T) {
	m := outdoor.NewModel(600, 3600, units.CelsiusToTemp(18))
	m.Update(units.CelsiusToTemp(0), 0)
	for i := 0; i < 10; i++ {
		m.Update(units.CelsiusToTemp(20), 300)
	}
	mixedC := units.TempToCelsius(m.Mixed())
	attC := units.TempToCelsius(m.Attenuated())
	assert.Greater(t, mixedC, attC)
}

func TestSentinelSamplesIgnored(t *testing.T) {
	m := outdoor.NewModel(600, 3600, units.CelsiusToTemp(18))
	m.Update(units.CelsiusToTemp(5), 0)
	m.Update(units.TempDiscon, 300)
	assert.InDelta(t, 5.0, units.TempToCelsius(m.Mixed()), 0.01)
}

func TestSummerRequiresBothFiltersAboveThreshold(t *testing.T) {
	m := outdoor.NewModel(600, 3600, units.CelsiusToTemp(18))
	m.Update(units.CelsiusToTemp(25), 0)
	assert.True(t, m.Summer(), "seeded sample above threshold on both filters enters summer immediately")

	// mixed drops below threshold but attenuated is still catching up above it
	for i := 0; i < 10; i++ {
		m.Update(units.CelsiusToTemp(10), 60)
	}
	assert.True(t, m.Summer(), "attenuated filter alone still above threshold should hold summer")
}

func TestSummerExitsOnlyWhenBothFiltersDrop(t *testing.T) {
	m := outdoor.NewModel(60, 600, units.CelsiusToTemp(18))
	m.Update(units.CelsiusToTemp(25), 0)
	require := assert.New(t)
	require.True(m.Summer())
	for i := 0; i < 200; i++ {
		m.Update(units.CelsiusToTemp(5), 60)
	}
	require.False(m.Summer())
}

func TestSteadySampleAfterSeedStaysPut(t *testing.T) {
	// First valid sample seeds both filters; a 1s tick at the same reading
	// must leave them exactly where they were seeded, not pulled toward a
	// zero-initialized previous value.
	m := outdoor.NewModel(36000, 36000, units.CelsiusToTemp(18))
	m.Update(units.CelsiusToTemp(5), 0)
	m.Update(units.CelsiusToTemp(5), 1)
	assert.InDelta(t, 5.0, units.TempToCelsius(m.Mixed()), 0.01)
	assert.InDelta(t, 5.0, units.TempToCelsius(m.Attenuated()), 0.01)
}

func TestBothFiltersConvergeToSteadySample(t *testing.T) {
	m := outdoor.NewModel(600, 3600, units.CelsiusToTemp(18))
	m.Update(units.CelsiusToTemp(0), 0)
	for i := 0; i < 1000; i++ {
		m.Update(units.CelsiusToTemp(12), 60)
	}
	assert.InDelta(t, 12.0, units.TempToCelsius(m.Mixed()), 0.05)
	assert.InDelta(t, 12.0, units.TempToCelsius(m.Attenuated()), 0.05)
}

package alarms_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/alarms"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
)

func TestRaiseQueuesEntry(t *testing.T) {
	a := alarms.New("", nil, time.Minute)
	a.Raise(rwerr.SensorDiscon, "sensor fault")
	assert.Equal(t, 1, a.Pending())
}

func TestRunClearsQueueEvenWithNoNotifier(t *testing.T) {
	a := alarms.New("", nil, 0)
	a.Raise(rwerr.SensorDiscon, "sensor fault")
	require.NoError(t, a.Run(time.Now()))
	assert.Equal(t, 0, a.Pending())
}

func TestRunClearsQueueEvenWhileThrottled(t *testing.T) {
	a := alarms.New("", nil, time.Minute)
	a.Raise(rwerr.SensorDiscon, "first")
	now := time.Now()
	require.NoError(t, a.Run(now))
	assert.Equal(t, 0, a.Pending())

	// A raise inside the throttle window is still cleared by the next Run:
	// persistent conditions are expected to re-raise every pass, so there
	// is nothing to keep.
	a.Raise(rwerr.SensorDiscon, "second")
	require.NoError(t, a.Run(now.Add(10*time.Second)))
	assert.Equal(t, 0, a.Pending())
}

func TestPendingCountsRaisesBetweenRuns(t *testing.T) {
	a := alarms.New("", nil, time.Minute)
	a.Raise(rwerr.Safety, "boiler over hard max")
	a.Raise(rwerr.SensorShort, "outdoor sensor shorted")
	assert.Equal(t, 2, a.Pending())
	require.NoError(t, a.Run(time.Now()))
	assert.Equal(t, 0, a.Pending())
}

func TestRunLaunchesNotifier(t *testing.T) {
	a := alarms.New("/bin/true", nil, 0)
	a.Raise(rwerr.SensorDiscon, "older")
	a.Raise(rwerr.SensorDiscon, "newer")
	require.NoError(t, a.Run(time.Now()))
}

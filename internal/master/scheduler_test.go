package master_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/circuit"
	"github.com/thatsimonsguy/rwchcd/internal/master"
)

func TestSchedulerAppliesMatchingEntry(t *testing.T) {
	fixed := time.Date(2026, 7, 27, 6, 0, 0, 0, time.UTC) // a Monday
	entries := []master.ScheduleEntry{
		{Weekday: time.Monday, Hour: 6, Minute: 0, CircuitName: "c1", Mode: circuit.Eco},
	}
	var gotName string
	var gotMode circuit.RunMode
	s := master.NewScheduler(entries, func(name string, mode circuit.RunMode) error {
		gotName, gotMode = name, mode
		return nil
	}, func() time.Time { return fixed })

	s.Run(contextWithImmediateCancel())
	require.Equal(t, "c1", gotName)
	assert.Equal(t, circuit.Eco, gotMode)
}

func TestSchedulerIgnoresNonMatchingEntry(t *testing.T) {
	fixed := time.Date(2026, 7, 27, 7, 0, 0, 0, time.UTC)
	entries := []master.ScheduleEntry{
		{Weekday: time.Tuesday, Hour: 6, Minute: 0, CircuitName: "c1", Mode: circuit.Eco},
	}
	called := false
	s := master.NewScheduler(entries, func(name string, mode circuit.RunMode) error {
		called = true
		return nil
	}, func() time.Time { return fixed })

	s.Run(contextWithImmediateCancel())
	assert.False(t, called)
}

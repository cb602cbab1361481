package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/store"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

func TestStoreRoundTripsRelaySnapshot(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	snap := actuator.Saved{IsOn: true, Since: timekeep.Tick(1234), CumOn: timekeep.Tick(500), CumOff: timekeep.Tick(900), Cycles: 7}
	require.NoError(t, s.SaveRelay("sim", "burner", snap))

	got, ok, err := s.LoadRelay("sim", "burner")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestStoreLoadMissingRelayReturnsNotFound(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.LoadRelay("sim", "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSaveRelayOverwritesExisting(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveRelay("sim", "pump", actuator.Saved{Cycles: 1}))
	require.NoError(t, s.SaveRelay("sim", "pump", actuator.Saved{Cycles: 2}))

	got, ok, err := s.LoadRelay("sim", "pump")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Cycles)
}

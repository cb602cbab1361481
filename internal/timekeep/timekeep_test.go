package timekeep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecTkRoundTrip(t *testing.T) {
	for _, s := range []float64{0, 1, 30, 3600, 86400} {
		got := TkToSec(SecToTk(s))
		assert.InDelta(t, s, got, 0.01)
	}
}

func TestAGeBOrdinaryOrder(t *testing.T) {
	assert.True(t, AGeB(10, 5))
	assert.False(t, AGeB(5, 10))
	assert.True(t, AGeB(5, 5))
}

func TestAGeBWraparound(t *testing.T) {
	// a has wrapped past the 32-bit boundary just after b; a should still
	// compare >= b under half-range arithmetic.
	b := Tick(math.MaxInt32 - 2)
	a := Tick(math.MinInt32 + 2)
	assert.True(t, AGeB(a, b))
	assert.False(t, AGeB(b, a))
}

func TestManualClockAdvance(t *testing.T) {
	m := NewManual()
	assert.Equal(t, Tick(0), m.Now())
	m.Advance(SecToTk(1.5))
	assert.Equal(t, Tick(15), m.Now())
}

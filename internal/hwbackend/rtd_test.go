package hwbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOhmToCelsiusPT1000AtZero(t *testing.T) {
	// PT1000 is defined to read ~1000 ohm at 0 C.
	c := OhmToCelsius(PT1000, 1000)
	assert.InDelta(t, 0, c, 0.05)
}

func TestOhmToCelsiusPT1000Monotonic(t *testing.T) {
	low := OhmToCelsius(PT1000, 1000)
	high := OhmToCelsius(PT1000, 1385.1)
	assert.Greater(t, high, low)
	assert.InDelta(t, 100, high, 0.5)
}

func TestOhmToCelsiusNI1000AtZero(t *testing.T) {
	c := OhmToCelsius(NI1000, 1000)
	assert.InDelta(t, 0, c, 0.05)
}

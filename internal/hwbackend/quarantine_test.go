package hwbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorBootstrapGate(t *testing.T) {
	m := NewMonitor(3, 5, 3)
	assert.True(t, m.Observe("s1", true))  // 1st good sample: still bootstrapping
	assert.True(t, m.Observe("s1", true))  // 2nd
	assert.False(t, m.Observe("s1", true)) // 3rd: bootstrapped, trusted
}

func TestMonitorQuarantineAndRecover(t *testing.T) {
	m := NewMonitor(1, 2, 2)
	assert.False(t, m.Observe("s1", true)) // bootstrapped after 1 sample
	assert.False(t, m.Observe("s1", false)) // 1 fault: below threshold of 2
	assert.True(t, m.Observe("s1", false))  // 2 consecutive faults: quarantined
	assert.True(t, m.Quarantined("s1"))

	assert.True(t, m.Observe("s1", true)) // still quarantined, 1 good sample
	assert.False(t, m.Observe("s1", true)) // 2nd good sample: recovered
	assert.False(t, m.Quarantined("s1"))
}

func TestMonitorResetForgetsHistory(t *testing.T) {
	m := NewMonitor(1, 1, 1)
	m.Observe("s1", true)
	m.Observe("s1", false)
	assert.True(t, m.Quarantined("s1"))
	m.Reset("s1")
	assert.True(t, m.Quarantined("s1")) // never observed again, not yet bootstrapped
}

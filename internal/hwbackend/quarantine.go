package hwbackend

import "sync"

// Monitor tracks, per sensor id, whether recent readings have been
// plausible, and quarantines a sensor that is faulting persistently rather
// than letting a single bad pass poison a control decision. A sensor is
// given a bootstrap grace period before its readings are trusted at all,
// since the first sample after backend startup is frequently a transient
// glitch as the ADC settles.
type Monitor struct {
	mu               sync.Mutex
	states           map[string]*sensorState
	bootstrapSamples int
	faultThreshold   int
	recoverThreshold int
}

type sensorState struct {
	bootstrapped bool
	goodStreak   int
	faultStreak  int
	quarantined  bool
}

// NewMonitor builds a quarantine monitor. bootstrapSamples is the number of
// consecutive usable samples required before a sensor is considered live;
// faultThreshold is the number of consecutive unusable samples that trips
// quarantine; recoverThreshold is the number of consecutive usable samples
// required to lift it again.
func NewMonitor(bootstrapSamples, faultThreshold, recoverThreshold int) *Monitor {
	return &Monitor{
		states:           make(map[string]*sensorState),
		bootstrapSamples: bootstrapSamples,
		faultThreshold:   faultThreshold,
		recoverThreshold: recoverThreshold,
	}
}

// Observe records one sample's usability for the named sensor and returns
// whether that sensor should currently be treated as quarantined (i.e. its
// readings should be reported as unusable to callers regardless of what the
// backend says).
func (m *Monitor) Observe(id string, usable bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[id]
	if !ok {
		s = &sensorState{}
		m.states[id] = s
	}

	if usable {
		s.goodStreak++
		s.faultStreak = 0
		if !s.bootstrapped && s.goodStreak >= m.bootstrapSamples {
			s.bootstrapped = true
		}
		if s.quarantined && s.goodStreak >= m.recoverThreshold {
			s.quarantined = false
		}
	} else {
		s.faultStreak++
		s.goodStreak = 0
		if s.bootstrapped && s.faultStreak >= m.faultThreshold {
			s.quarantined = true
		}
	}

	return !s.bootstrapped || s.quarantined
}

// Reset discards all tracked history for a sensor, e.g. after it is
// reconfigured to point at a different physical resource.
func (m *Monitor) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
}

// Quarantined reports the current quarantine state without recording a
// sample.
func (m *Monitor) Quarantined(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return true // never observed, so not yet bootstrapped
	}
	return !s.bootstrapped || s.quarantined
}

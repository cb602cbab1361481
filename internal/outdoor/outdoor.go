// Package outdoor implements the outdoor-temperature model: two cascaded
// exponential moving averages feeding the rest of the core a "mixed"
// (fast, lightly filtered) and "attenuated" (slow, heavily filtered)
// reading, plus a hysteresis-free summer/winter flag derived from both.
package outdoor

import "github.com/thatsimonsguy/rwchcd/internal/units"

// Model tracks the two cascaded filters from a stream of raw outdoor
// sensor samples.
type Model struct {
	tauMixed      float64 // seconds
	tauAttenuated float64 // seconds
	summerThresh  units.Temp

	seeded     bool
	mixed      float64 // centikelvin, float for sub-count precision between samples
	attenuated float64

	summer bool
}

// NewModel builds an outdoor model. tauMixed and tauAttenuated are each
// filter's time constant in seconds; summerThresh is the single temperature
// above which both filters must sit to declare summer, and below which both
// must sit to leave it again.
func NewModel(tauMixed, tauAttenuated float64, summerThresh units.Temp) *Model {
	return &Model{tauMixed: tauMixed, tauAttenuated: tauAttenuated, summerThresh: summerThresh}
}

// Update folds in one new raw sample taken dt seconds after the previous
// one. The first sample ever seen seeds both filters directly rather than
// letting them ramp up from zero, since zero centikelvin is nowhere near a
// plausible outdoor temperature and would take a long time to filter out.
func (m *Model) Update(raw units.Temp, dt float64) {
	if !units.Usable(raw) {
		return
	}
	r := float64(raw)
	if !m.seeded {
		m.mixed = r
		m.attenuated = r
		m.seeded = true
	} else {
		if dt > 0 {
			aMixed := dt / (m.tauMixed + dt)
			m.mixed += aMixed * (r - m.mixed)
			aAtt := dt / (m.tauAttenuated + dt)
			m.attenuated += aAtt * (m.mixed - m.attenuated)
		}
	}
	m.updateSummer()
}

// updateSummer applies the asymmetric AND / AND-NOT rule: entering summer
// requires both filters to be at or above the threshold; leaving requires
// both to have dropped below it. There is no separate hysteresis band —
// the asymmetry between the two filters' time constants is what prevents
// chatter, since the fast filter crosses the threshold well before the
// slow one confirms it.
func (m *Model) updateSummer() {
	if !m.summer {
		if m.mixed >= float64(m.summerThresh) && m.attenuated >= float64(m.summerThresh) {
			m.summer = true
		}
		return
	}
	if m.mixed < float64(m.summerThresh) && m.attenuated < float64(m.summerThresh) {
		m.summer = false
	}
}

// Mixed returns the fast filter's current reading, or units.TempUnset if no
// sample has been seen yet.
func (m *Model) Mixed() units.Temp {
	if !m.seeded {
		return units.TempUnset
	}
	return units.Temp(m.mixed)
}

// Attenuated returns the slow filter's current reading.
func (m *Model) Attenuated() units.Temp {
	if !m.seeded {
		return units.TempUnset
	}
	return units.Temp(m.attenuated)
}

// Summer reports the current summer/winter flag.
func (m *Model) Summer() bool { return m.summer }

// Seeded reports whether any sample has been folded in yet.
func (m *Model) Seeded() bool { return m.seeded }

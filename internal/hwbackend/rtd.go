package hwbackend

import "math"

// RTDType identifies a resistance-temperature-detector curve.
type RTDType int

const (
	PT1000 RTDType = iota
	NI1000
)

type rtdCoeffs struct {
	r0, a, b float64
}

func coeffsFor(t RTDType) rtdCoeffs {
	switch t {
	case NI1000:
		// DIN 43760, 6178 ppm/K.
		return rtdCoeffs{r0: 1000, a: 5.485e-3, b: 6.650e-6}
	default:
		const alpha = 3.850e-3
		const delta = 1.4999
		return rtdCoeffs{
			r0: 1000,
			a:  alpha + alpha*delta/100,
			b:  -alpha * delta / 1e4,
		}
	}
}

// OhmToCelsius converts a measured RTD resistance to a temperature in
// degrees Celsius using the Callendar-Van Dusen quadratic, solved for the
// positive root. ohm <= 0 is not physically meaningful and returns NaN; the
// caller is expected to have already rejected out-of-range ADC readings as
// TEMPSHORT/TEMPDISCON before this is invoked.
func OhmToCelsius(t RTDType, ohm float64) float64 {
	if ohm <= 0 {
		return math.NaN()
	}
	c := coeffsFor(t)
	disc := c.r0*c.r0*c.a*c.a - 4*c.r0*c.b*(c.r0-ohm)
	if disc < 0 {
		return math.NaN()
	}
	return (-c.r0*c.a + math.Sqrt(disc)) / (2 * c.r0 * c.b)
}

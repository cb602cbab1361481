package circuit

import (
	"math"

	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// TempLaw is the bilinear outdoor-temperature water curve: two straight
// segments joined at an inflection point derived from two anchor points,
// (Tout1,Twater1) for the cold end and (Tout2,Twater2) for the mild end,
// plus a non-linearity coefficient that lifts or sags the inflection water
// temperature relative to the straight line joining the two anchors.
type TempLaw struct {
	// Tout1/Twater1 is the cold-end anchor: Tout1 is the coldest outdoor
	// temperature the curve is tuned for, Twater1 the water temperature it
	// demands there.
	Tout1, Twater1 units.Temp
	// Tout2/Twater2 is the mild-end anchor: Tout2 > Tout1, Twater2 < Twater1.
	Tout2, Twater2 units.Temp

	// NH100 is the non-linearity coefficient, ×100 (100 = pure linear curve;
	// above 100 concave-lifts the cold segment above the straight line).
	NH100 float64
}

var celsius20 = units.CelsiusToTemp(20)

// Compute returns the templaw's target water temperature for the given
// outdoor reading, derived from the two anchor points and NH100 per the
// reference bilinear-curve construction, then shifted for targetAmbient (the
// circuit's desired ambient temperature for its current runmode, or
// TempUnset to skip the shift). A non-usable outdoor reading cannot be
// computed against and yields TempInvalid.
func (l TempLaw) Compute(outdoor, targetAmbient units.Temp) units.Temp {
	if !units.Usable(outdoor) {
		return units.TempInvalid
	}

	m := float64(l.Twater2-l.Twater1) / float64(l.Tout2-l.Tout1)
	b := float64(l.Twater2) - float64(l.Tout2)*m

	toutw20 := (float64(celsius20) - b) / m
	toutinfl := toutw20 - 0.30*(toutw20-float64(l.Tout1))
	tlin := toutinfl*m + b
	twaterinfl := tlin + (tlin-float64(celsius20))*(l.NH100-100)/100

	out := float64(outdoor)
	var target float64
	switch {
	case out >= toutinfl && float64(l.Tout2) != toutinfl:
		slope := (float64(l.Twater2) - twaterinfl) / (float64(l.Tout2) - toutinfl)
		target = twaterinfl + slope*(out-toutinfl)
	case out < toutinfl && toutinfl != float64(l.Tout1):
		slope := (twaterinfl - float64(l.Twater1)) / (toutinfl - float64(l.Tout1))
		target = twaterinfl + slope*(out-toutinfl)
	default:
		target = twaterinfl
	}

	if units.Usable(targetAmbient) {
		target += (float64(targetAmbient) - float64(celsius20)) * (1 - m)
	}

	return units.Temp(math.Round(target))
}

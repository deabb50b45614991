package fillers

import "github.com/aristath/rao/internal/domain"

const (
	// setpointEpsilon widens setpoint bounds so that the extreme setpoints
	// survive rounding.
	setpointEpsilon = 1e-5
	// fallbackBigM is used when no cnec of the perimeter has a finite threshold.
	fallbackBigM = 1e4
	// marginDecreaseFactor bounds how far the flow of an unoptimized cnec may
	// move, in multiples of the largest threshold.
	marginDecreaseFactor = 20
	// marginDecreaseTolerance is the relative margin loss still read as no
	// decrease.
	marginDecreaseTolerance = 1e-4
)

// BigM is the gating constant shared by every filler that switches a
// constraint on or off with a binary: twice the largest absolute threshold of
// the perimeter cnecs, expressed in unit.
func BigM(cnecs []*domain.Cnec, unit domain.Unit) float64 {
	largest := domain.LargestThreshold(cnecs, unit)
	if !(largest > 0) {
		return fallbackBigM
	}
	return 2 * largest
}

// MarginDecreaseBigM gates the constraints that decide whether a cnec takes
// part in the objective: 20 times the largest threshold, ten times BigM.
func MarginDecreaseBigM(cnecs []*domain.Cnec, unit domain.Unit) float64 {
	return marginDecreaseFactor / 2 * BigM(cnecs, unit)
}

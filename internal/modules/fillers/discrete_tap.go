package fillers

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

var directions = []linearproblem.VariationDirection{linearproblem.Upward, linearproblem.Downward}

// DiscreteTapFiller turns the angle of every phase shifter into a whole number
// of tap steps away from its current tap:
//
//	S[r] = angle(tap) + dUp * up[r] - dDown * down[r]
//	up[r] <= maxUp * upBin[r], down[r] <= maxDown * downBin[r]
//	upBin[r] + downBin[r] <= 1
//
// dUp and dDown are the angle differences to the neighbouring taps. Every
// coefficient depends on the current tap and is rewritten on Update.
type DiscreteTapFiller struct {
	perimeter    *domain.Perimeter
	prePerimeter domain.SetpointResult
	log          zerolog.Logger
}

func NewDiscreteTapFiller(log zerolog.Logger, perimeter *domain.Perimeter, prePerimeter domain.SetpointResult) *DiscreteTapFiller {
	return &DiscreteTapFiller{
		perimeter:    perimeter,
		prePerimeter: prePerimeter,
		log:          log.With().Str("component", "discrete_tap_filler").Logger(),
	}
}

func (f *DiscreteTapFiller) Fill(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult) error {
	count := 0
	for _, state := range f.perimeter.States() {
		for _, ra := range f.perimeter.RangeActions(state) {
			if ra.Kind != domain.PstAction {
				continue
			}
			if err := f.build(lp, ra, state); err != nil {
				return err
			}
			count++
		}
	}
	if err := f.refresh(lp, f.prePerimeter); err != nil {
		return err
	}
	f.log.Debug().Int("psts", count).Msg("Discrete tap filler done")
	return nil
}

func (f *DiscreteTapFiller) Update(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult, setpoints domain.SetpointResult) error {
	return f.refresh(lp, setpoints)
}

// build creates the variables and the constraint skeletons; refresh sets the
// tap-dependent values.
func (f *DiscreteTapFiller) build(lp *linearproblem.LinearProblem, ra *domain.RangeAction, state *domain.State) error {
	sv, err := lp.SetpointVariable(ra, state)
	if err != nil {
		return err
	}

	vars := make(map[linearproblem.VariationDirection]*linearproblem.Variable, 2)
	bins := make(map[linearproblem.VariationDirection]*linearproblem.Variable, 2)
	for _, d := range directions {
		if vars[d], err = lp.AddTapVariationVariable(0, 0, ra, state, d); err != nil {
			return err
		}
		if bins[d], err = lp.AddTapVariationBinary(ra, state, d); err != nil {
			return err
		}
	}

	conversion, err := lp.AddTapToAngleConversionConstraint(0, 0, ra, state)
	if err != nil {
		return err
	}
	conversion.SetCoefficient(sv, 1)

	upOrDown, err := lp.AddUpOrDownConstraint(math.Inf(-1), 1, ra, state)
	if err != nil {
		return err
	}
	upOrDown.SetCoefficient(bins[linearproblem.Upward], 1)
	upOrDown.SetCoefficient(bins[linearproblem.Downward], 1)

	for _, d := range directions {
		con, err := lp.AddIsVariationInDirectionConstraint(math.Inf(-1), 0, ra, state, linearproblem.PreviousIteration, d)
		if err != nil {
			return err
		}
		con.SetCoefficient(vars[d], 1)
	}

	previous, previousState, ok := f.perimeter.PreviousAction(ra, state)
	if !ok || previous.Kind != domain.PstAction {
		return nil
	}
	prevUp, err := lp.TapVariationVariable(previous, previousState, linearproblem.Upward)
	if err != nil {
		return err
	}
	prevDown, err := lp.TapVariationVariable(previous, previousState, linearproblem.Downward)
	if err != nil {
		return err
	}
	rel, err := lp.AddRelativeTapConstraint(math.Inf(-1), linearproblem.Infinity(), ra, state)
	if err != nil {
		return err
	}
	rel.SetCoefficient(vars[linearproblem.Upward], 1)
	rel.SetCoefficient(vars[linearproblem.Downward], -1)
	rel.SetCoefficient(prevUp, -1)
	rel.SetCoefficient(prevDown, 1)
	return nil
}

// admissibleTaps returns the taps reachable in state. Only the first state of
// an action is limited by its pre-perimeter position; later states use the
// whole table and rely on the relative tap constraint.
func (f *DiscreteTapFiller) admissibleTaps(ra *domain.RangeAction, state *domain.State) (int, int, error) {
	if _, _, ok := f.perimeter.PreviousAction(ra, state); ok {
		low, high := domain.TapBounds(ra)
		return low, high, nil
	}
	lo, hi, err := domain.AdmissibleRange(ra, f.prePerimeter.Setpoint(ra, state))
	if err != nil {
		return 0, 0, err
	}
	low, high := domain.AngleToTap(ra, lo), domain.AngleToTap(ra, hi)
	if low > high {
		low, high = high, low
	}
	return low, high, nil
}

func (f *DiscreteTapFiller) refresh(lp *linearproblem.LinearProblem, setpoints domain.SetpointResult) error {
	for _, state := range f.perimeter.States() {
		for _, ra := range f.perimeter.RangeActions(state) {
			if ra.Kind != domain.PstAction {
				continue
			}
			if err := f.refreshAction(lp, ra, state, setpoints); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *DiscreteTapFiller) refreshAction(lp *linearproblem.LinearProblem, ra *domain.RangeAction, state *domain.State, setpoints domain.SetpointResult) error {
	tap := setpoints.Tap(ra, state)
	angle, err := domain.TapToAngle(ra, tap)
	if err != nil {
		return err
	}
	minTap, maxTap, err := f.admissibleTaps(ra, state)
	if err != nil {
		return err
	}
	steps := map[linearproblem.VariationDirection]int{
		linearproblem.Upward:   max(0, maxTap-tap),
		linearproblem.Downward: max(0, tap-minTap),
	}
	// Coefficients of the step variables in S - dUp*up + dDown*down = angle.
	// They stay zero at the edge of the table, where the step count is zero too.
	coef := map[linearproblem.VariationDirection]float64{}
	if next, ok := ra.Taps.TapToAngle[tap+1]; ok {
		coef[linearproblem.Upward] = angle - next
	}
	if prev, ok := ra.Taps.TapToAngle[tap-1]; ok {
		coef[linearproblem.Downward] = angle - prev
	}

	conversion, err := lp.TapToAngleConversionConstraint(ra, state)
	if err != nil {
		return err
	}
	conversion.SetBounds(angle, angle)

	total := float64(steps[linearproblem.Upward] + steps[linearproblem.Downward])
	for _, d := range directions {
		v, err := lp.TapVariationVariable(ra, state, d)
		if err != nil {
			return err
		}
		bin, err := lp.TapVariationBinary(ra, state, d)
		if err != nil {
			return err
		}
		v.SetBounds(0, total)
		conversion.SetCoefficient(v, coef[d])

		authorization, err := lp.IsVariationInDirectionConstraint(ra, state, linearproblem.PreviousIteration, d)
		if err != nil {
			return err
		}
		authorization.SetCoefficient(bin, -float64(steps[d]))
	}

	rel, err := lp.RelativeTapConstraint(ra, state)
	if isNotCreated(err) {
		return nil
	}
	if err != nil {
		return err
	}
	previous, previousState, _ := f.perimeter.PreviousAction(ra, state)
	prevTap := float64(setpoints.Tap(previous, previousState))
	limits := domain.Limits(ra)
	step := domain.SmallestAngleStep(ra)
	minRel, maxRel := math.Inf(-1), math.Inf(1)
	if !math.IsInf(limits.MinRelative, -1) {
		minRel = math.Min(0, math.Round(limits.MinRelative/step))
	}
	if !math.IsInf(limits.MaxRelative, 1) {
		maxRel = math.Max(0, math.Round(limits.MaxRelative/step))
	}
	rel.SetBounds(minRel+prevTap-float64(tap), maxRel+prevTap-float64(tap))
	return nil
}

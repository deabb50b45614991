package fillers

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

const rangeShrinkRate = 0.667

// CoreFiller links cnec flows to range action setpoints. It must run first:
// every other filler reads the flow and setpoint variables it creates.
//
//	F[c] = fref[c] + sum{r} sensi[c,r] * (S[r] - Sref[r])
//	AV[r] >= |S[r] - reference[r]|
type CoreFiller struct {
	perimeter    *domain.Perimeter
	prePerimeter domain.SetpointResult
	params       RangeActionParameters
	discretePsts bool
	iteration    int
	log          zerolog.Logger
}

// NewCoreFiller creates the core filler. prePerimeter holds the setpoints the
// initial flows and sensitivities were computed with.
func NewCoreFiller(log zerolog.Logger, perimeter *domain.Perimeter, prePerimeter domain.SetpointResult, params RangeActionParameters) *CoreFiller {
	return &CoreFiller{
		perimeter:    perimeter,
		prePerimeter: prePerimeter,
		params:       params,
		log:          log.With().Str("component", "core_filler").Logger(),
	}
}

// WithDiscretePsts leaves the relative range of PSTs to the relative tap
// constraint of the discrete tap filler.
func (f *CoreFiller) WithDiscretePsts() *CoreFiller {
	f.discretePsts = true
	return f
}

func (f *CoreFiller) Fill(lp *linearproblem.LinearProblem, flows domain.FlowResult, sens domain.SensitivityResult) error {
	flowCount := 0
	for _, cs := range cnecSides(f.perimeter.FlowCnecs()) {
		if sens.Status(cs.cnec.State) == domain.ComputationFailure {
			continue
		}
		if _, err := lp.AddFlowVariable(math.Inf(-1), linearproblem.Infinity(), cs.cnec, cs.side); err != nil {
			return err
		}
		if _, err := lp.AddFlowConstraint(0, 0, cs.cnec, cs.side); err != nil {
			return err
		}
		flowCount++
	}

	for _, state := range f.perimeter.States() {
		for _, ra := range f.perimeter.RangeActions(state) {
			if _, err := lp.AddSetpointVariable(math.Inf(-1), linearproblem.Infinity(), ra, state); err != nil {
				return err
			}
			av, err := lp.AddAbsoluteVariationVariable(0, linearproblem.Infinity(), ra, state)
			if err != nil {
				return err
			}
			lp.Objective().SetCoefficient(av, f.params.penaltyCost(ra))
		}
	}

	if err := f.updateFlowConstraints(lp, flows, sens, f.prePerimeter); err != nil {
		return err
	}
	for _, state := range f.perimeter.States() {
		for _, ra := range f.perimeter.RangeActions(state) {
			if err := f.buildRangeActionConstraints(lp, ra, state); err != nil {
				return err
			}
		}
	}

	f.log.Debug().
		Int("flow_variables", flowCount).
		Int("range_actions", len(f.perimeter.AllRangeActions())).
		Msg("Core filler done")
	return nil
}

func (f *CoreFiller) Update(lp *linearproblem.LinearProblem, flows domain.FlowResult, sens domain.SensitivityResult, setpoints domain.SetpointResult) error {
	if err := f.updateFlowConstraints(lp, flows, sens, setpoints); err != nil {
		return err
	}
	if !f.params.RangeShrinking {
		return nil
	}
	f.iteration++
	for _, state := range f.perimeter.States() {
		for _, ra := range f.perimeter.RangeActions(state) {
			if err := f.shrinkRange(lp, ra, state, setpoints); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateFlowConstraints sets the flow constraint of every cnec side that has
// one. Sensitivities below the technology threshold are dropped from both the
// coefficients and the right-hand side.
func (f *CoreFiller) updateFlowConstraints(lp *linearproblem.LinearProblem, flows domain.FlowResult, sens domain.SensitivityResult, reference domain.SetpointResult) error {
	for _, cs := range cnecSides(f.perimeter.FlowCnecs()) {
		con, err := lp.FlowConstraint(cs.cnec, cs.side)
		if isNotCreated(err) {
			continue
		}
		if err != nil {
			return err
		}
		fv, err := lp.FlowVariable(cs.cnec, cs.side)
		if err != nil {
			return err
		}
		refFlow := flows.Flow(cs.cnec, cs.side, domain.Megawatt)
		if err := validFlow(cs.cnec, cs.side, refFlow); err != nil {
			return err
		}
		con.SetCoefficient(fv, 1)

		rhs := refFlow
		seen := make(map[string]bool)
		// Only the last state in which an action is available acts on the cnec.
		for _, state := range f.perimeter.StatesUpTo(cs.cnec.State) {
			for _, ra := range f.perimeter.RangeActions(state) {
				if seen[ra.ID] {
					continue
				}
				for _, other := range f.perimeter.AllRangeActions() {
					if domain.SameAction(ra, other) {
						seen[other.ID] = true
					}
				}
				sv, err := lp.SetpointVariable(ra, state)
				if err != nil {
					return err
				}
				sensitivity := sens.Sensitivity(cs.cnec, cs.side, ra, domain.Megawatt)
				if math.Abs(sensitivity) < f.params.sensitivityThreshold(ra) {
					con.SetCoefficient(sv, 0)
					continue
				}
				rhs -= sensitivity * reference.Setpoint(ra, state)
				con.SetCoefficient(sv, -sensitivity)
			}
		}
		con.SetBounds(rhs, rhs)
	}
	return nil
}

func (f *CoreFiller) buildRangeActionConstraints(lp *linearproblem.LinearProblem, ra *domain.RangeAction, state *domain.State) error {
	sv, err := lp.SetpointVariable(ra, state)
	if err != nil {
		return err
	}
	av, err := lp.AbsoluteVariationVariable(ra, state)
	if err != nil {
		return err
	}
	negative, err := lp.AddAbsoluteVariationConstraint(math.Inf(-1), linearproblem.Infinity(), ra, state, linearproblem.Negative)
	if err != nil {
		return err
	}
	positive, err := lp.AddAbsoluteVariationConstraint(math.Inf(-1), linearproblem.Infinity(), ra, state, linearproblem.Positive)
	if err != nil {
		return err
	}
	negative.SetCoefficient(av, 1)
	negative.SetCoefficient(sv, -1)
	positive.SetCoefficient(av, 1)
	positive.SetCoefficient(sv, 1)

	previous, previousState, ok := f.perimeter.PreviousAction(ra, state)
	if !ok {
		pre := f.prePerimeter.Setpoint(ra, state)
		lo, hi, err := domain.AdmissibleRange(ra, pre)
		if err != nil {
			return err
		}
		sv.SetBounds(lo-setpointEpsilon, hi+setpointEpsilon)
		negative.SetLB(-pre)
		positive.SetLB(pre)
		return nil
	}

	// The action was usable earlier on the same branch: its variation is
	// measured from the earlier setpoint variable.
	prev, err := lp.SetpointVariable(previous, previousState)
	if err != nil {
		return fmt.Errorf("setpoint of %s before %s: %w", ra.ID, state.ID, err)
	}
	limits := domain.Limits(ra)
	if !f.discretePsts || ra.Kind != domain.PstAction {
		rel, err := lp.AddRelativeSetpointConstraint(limits.MinRelative, limits.MaxRelative, ra, state)
		if err != nil {
			return err
		}
		rel.SetCoefficient(sv, 1)
		rel.SetCoefficient(prev, -1)
	}
	sv.SetBounds(limits.MinAbsolute-setpointEpsilon, limits.MaxAbsolute+setpointEpsilon)

	negative.SetLB(0)
	negative.SetCoefficient(prev, 1)
	positive.SetLB(0)
	positive.SetCoefficient(prev, -1)
	return nil
}

// shrinkRange bounds the setpoint around the previous iteration value. The
// width decreases geometrically with the iteration count.
func (f *CoreFiller) shrinkRange(lp *linearproblem.LinearProblem, ra *domain.RangeAction, state *domain.State, setpoints domain.SetpointResult) error {
	previous := setpoints.Setpoint(ra, state)
	limits := domain.Limits(ra)
	width := (limits.MaxAbsolute - limits.MinAbsolute) * math.Pow(rangeShrinkRate, float64(f.iteration))
	lb, ub := previous-width, previous+width

	con, err := lp.IterativeShrinkConstraint(ra, state)
	if err == nil {
		con.SetBounds(lb, ub)
		return nil
	}
	if !isNotCreated(err) {
		return err
	}
	sv, err := lp.SetpointVariable(ra, state)
	if err != nil {
		return err
	}
	con, err = lp.AddIterativeShrinkConstraint(lb, ub, ra, state)
	if err != nil {
		return err
	}
	con.SetCoefficient(sv, 1)
	return nil
}

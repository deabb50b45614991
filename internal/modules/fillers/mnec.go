package fillers

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// MnecFiller keeps monitored elements within their thresholds, or no worse
// than their initial flow plus an acceptable decrease. Violations are allowed
// but paid for in the objective.
//
//	F[c] - V[c] <= max(fmax[c], f0[c] + d) - adj
//	F[c] + V[c] >= min(fmin[c], f0[c] - d) + adj
type MnecFiller struct {
	cnecs        []*domain.Cnec
	initialFlows domain.FlowResult
	params       MnecParameters
	unit         domain.Unit
	log          zerolog.Logger
}

// NewMnecFiller creates the filler. initialFlows are the flows before any
// remedial action was applied.
func NewMnecFiller(log zerolog.Logger, perimeter *domain.Perimeter, initialFlows domain.FlowResult, params MnecParameters, unit domain.Unit) *MnecFiller {
	var cnecs []*domain.Cnec
	for _, c := range perimeter.FlowCnecs() {
		if c.Monitored {
			cnecs = append(cnecs, c)
		}
	}
	return &MnecFiller{
		cnecs:        cnecs,
		initialFlows: initialFlows,
		params:       params,
		unit:         unit,
		log:          log.With().Str("component", "mnec_filler").Logger(),
	}
}

func (f *MnecFiller) Fill(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult) error {
	count := 0
	for _, c := range f.cnecs {
		sides := domain.MonitoredSides(c)
		for _, side := range sides {
			fv, err := lp.FlowVariable(c, side)
			if isNotCreated(err) {
				continue
			}
			if err != nil {
				return err
			}
			initial := f.initialFlows.Flow(c, side, domain.Megawatt)
			if math.IsNaN(initial) {
				continue
			}
			viol, err := lp.AddMnecViolationVariable(0, linearproblem.Infinity(), c, side)
			if err != nil {
				return err
			}

			if ub, ok := domain.UpperBound(c, side, domain.Megawatt); ok {
				bound := math.Max(ub, initial+f.params.AcceptableMarginDecrease) - f.params.ConstraintAdjustmentCoefficient
				con, err := lp.AddMnecFlowConstraint(math.Inf(-1), bound, c, side, linearproblem.BelowThreshold)
				if err != nil {
					return err
				}
				con.SetCoefficient(fv, 1)
				con.SetCoefficient(viol, -1)
			}
			if lb, ok := domain.LowerBound(c, side, domain.Megawatt); ok {
				bound := math.Min(lb, initial-f.params.AcceptableMarginDecrease) + f.params.ConstraintAdjustmentCoefficient
				con, err := lp.AddMnecFlowConstraint(bound, linearproblem.Infinity(), c, side, linearproblem.AboveThreshold)
				if err != nil {
					return err
				}
				con.SetCoefficient(fv, 1)
				con.SetCoefficient(viol, 1)
			}

			cost := f.params.ViolationCost / float64(len(sides))
			if f.unit == domain.Ampere {
				k, err := domain.FlowUnitMultiplier(c, side, domain.Ampere, domain.Megawatt)
				if err != nil {
					return err
				}
				cost /= k
			}
			lp.Objective().SetCoefficient(viol, cost)
			count++
		}
	}
	f.log.Debug().Int("monitored_sides", count).Msg("MNEC filler done")
	return nil
}

func (f *MnecFiller) Update(*linearproblem.LinearProblem, domain.FlowResult, domain.SensitivityResult, domain.SetpointResult) error {
	return nil
}

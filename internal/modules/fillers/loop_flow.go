package fillers

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// loopFlowTolerance loosens both loop-flow bounds so that the initial
// situation stays feasible after rounding.
const loopFlowTolerance = 0.01

// LoopFlowFiller limits the loop flow of the cnecs carrying a loop-flow
// threshold. The commercial flow is taken as constant within one iteration:
//
//	F[c] - V[c] <= LF[c] + CF[c]
//	F[c] + V[c] >= -LF[c] + CF[c]
//	LF[c] = max(threshold[c], |lf0[c]| + increase) - adj
type LoopFlowFiller struct {
	cnecs        []*domain.Cnec
	initialFlows domain.FlowResult
	params       LoopFlowParameters
	log          zerolog.Logger
}

// NewLoopFlowFiller creates the filler. initialFlows provide the loop flows
// before any remedial action was applied.
func NewLoopFlowFiller(log zerolog.Logger, perimeter *domain.Perimeter, initialFlows domain.FlowResult, params LoopFlowParameters) *LoopFlowFiller {
	return &LoopFlowFiller{
		cnecs:        perimeter.LoopFlowCnecs(),
		initialFlows: initialFlows,
		params:       params,
		log:          log.With().Str("component", "loop_flow_filler").Logger(),
	}
}

func (f *LoopFlowFiller) Fill(lp *linearproblem.LinearProblem, flows domain.FlowResult, _ domain.SensitivityResult) error {
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
			viol, err := lp.AddLoopFlowViolationVariable(0, linearproblem.Infinity(), c, side)
			if err != nil {
				return err
			}
			lower, err := lp.AddMaxLoopFlowConstraint(math.Inf(-1), linearproblem.Infinity(), c, side, linearproblem.LowerBound)
			if err != nil {
				return err
			}
			lower.SetCoefficient(fv, 1)
			lower.SetCoefficient(viol, 1)
			upper, err := lp.AddMaxLoopFlowConstraint(math.Inf(-1), linearproblem.Infinity(), c, side, linearproblem.UpperBound)
			if err != nil {
				return err
			}
			upper.SetCoefficient(fv, 1)
			upper.SetCoefficient(viol, -1)

			lp.Objective().SetCoefficient(viol, f.params.ViolationCost/float64(len(sides)))
			count++
		}
	}
	if err := f.setBounds(lp, flows); err != nil {
		return err
	}
	f.log.Debug().Int("loop_flow_sides", count).Msg("Loop-flow filler done")
	return nil
}

// Update moves the bounds with the new commercial flows, only when PTDFs are
// recomputed with PST changes.
func (f *LoopFlowFiller) Update(lp *linearproblem.LinearProblem, flows domain.FlowResult, _ domain.SensitivityResult, _ domain.SetpointResult) error {
	if !f.params.PtdfApproximation.ShouldUpdatePtdfWithPstChange() {
		return nil
	}
	return f.setBounds(lp, flows)
}

func (f *LoopFlowFiller) setBounds(lp *linearproblem.LinearProblem, flows domain.FlowResult) error {
	for _, c := range f.cnecs {
		for _, side := range domain.MonitoredSides(c) {
			lower, err := lp.MaxLoopFlowConstraint(c, side, linearproblem.LowerBound)
			if isNotCreated(err) {
				continue
			}
			if err != nil {
				return err
			}
			upper, err := lp.MaxLoopFlowConstraint(c, side, linearproblem.UpperBound)
			if err != nil {
				return err
			}
			limit, err := f.limit(c, side)
			if err != nil {
				return err
			}
			commercial := flows.CommercialFlow(c, side, domain.Megawatt)
			lower.SetLB(-limit + commercial - loopFlowTolerance)
			upper.SetUB(limit + commercial + loopFlowTolerance)
		}
	}
	return nil
}

// limit is the largest loop flow accepted on side, in MW.
func (f *LoopFlowFiller) limit(c *domain.Cnec, side domain.Side) (float64, error) {
	threshold := 0.0
	if c.LoopFlowThreshold != nil {
		k, err := domain.FlowUnitMultiplier(c, side, c.LoopFlowThreshold.Unit, domain.Megawatt)
		if err != nil {
			return 0, err
		}
		threshold = c.LoopFlowThreshold.Value * k
	}
	initial := math.Abs(f.initialFlows.LoopFlow(c, side, domain.Megawatt))
	if math.IsNaN(initial) {
		initial = 0
	}
	return math.Max(threshold, initial+f.params.AcceptableIncrease) - f.params.ConstraintAdjustmentCoefficient, nil
}

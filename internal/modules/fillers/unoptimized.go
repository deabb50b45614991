package fillers

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// UnoptimizedCnecFiller lets some cnecs leave the margin objective. Each
// such cnec side gets a binary OPT, 1 when the cnec takes part in the
// objective. Its margin constraints are relaxed by M while OPT is 0:
//
//	F[c] + k[c] * MM + M * OPT[c] <= fmax[c] + M
//
// Two rules decide when OPT may be 0. Cnecs of the operators not to optimise
// may leave as long as their margin does not fall below the pre-perimeter
// margin. Cnecs secured by a PST may leave as long as the PST can still bring
// their flow back within the thresholds. It must run after the margin filler.
type UnoptimizedCnecFiller struct {
	perimeter     *domain.Perimeter
	prePerimeter  domain.FlowResult
	params        UnoptimizedCnecParameters
	rangeActions  RangeActionParameters
	bigM          float64
	decreaseBigM  float64
	marginCnecs   []*domain.Cnec
	securedByPsts []*domain.Cnec
	log           zerolog.Logger
}

// NewUnoptimizedCnecFiller creates the filler. prePerimeter holds the flows
// at the start of the perimeter.
func NewUnoptimizedCnecFiller(log zerolog.Logger, perimeter *domain.Perimeter, prePerimeter domain.FlowResult, params UnoptimizedCnecParameters, rangeActions RangeActionParameters) *UnoptimizedCnecFiller {
	f := &UnoptimizedCnecFiller{
		perimeter:    perimeter,
		prePerimeter: prePerimeter,
		params:       params,
		rangeActions: rangeActions,
		bigM:         BigM(perimeter.FlowCnecs(), domain.Megawatt),
		decreaseBigM: MarginDecreaseBigM(perimeter.FlowCnecs(), domain.Megawatt),
		log:          log.With().Str("component", "unoptimized_cnec_filler").Logger(),
	}
	for _, c := range perimeter.FlowCnecs() {
		if _, ok := params.CnecsSecuredByTheirPst[c.ID]; ok {
			f.securedByPsts = append(f.securedByPsts, c)
			continue
		}
		if c.Optimized && contains(params.OperatorsNotToOptimize, c.Operator) {
			f.marginCnecs = append(f.marginCnecs, c)
		}
	}
	return f
}

func (f *UnoptimizedCnecFiller) Fill(lp *linearproblem.LinearProblem, _ domain.FlowResult, sens domain.SensitivityResult) error {
	marginCount, pstCount := 0, 0
	for _, cs := range cnecSides(f.marginCnecs) {
		built, err := f.buildMarginDecrease(lp, cs.cnec, cs.side)
		if err != nil {
			return err
		}
		if built {
			marginCount++
		}
	}
	for _, cs := range cnecSides(f.securedByPsts) {
		built, err := f.buildPstLimitation(lp, cs.cnec, cs.side)
		if err != nil {
			return err
		}
		if built {
			pstCount++
		}
	}
	if err := f.refreshPstLimitation(lp, sens); err != nil {
		return err
	}
	f.log.Debug().
		Int("margin_decrease", marginCount).
		Int("pst_limitation", pstCount).
		Float64("big_m", f.bigM).
		Float64("decrease_big_m", f.decreaseBigM).
		Msg("Unoptimized cnec filler done")
	return nil
}

// Update rewrites the PST-limitation constraints with the new sensitivities.
func (f *UnoptimizedCnecFiller) Update(lp *linearproblem.LinearProblem, _ domain.FlowResult, sens domain.SensitivityResult, _ domain.SetpointResult) error {
	return f.refreshPstLimitation(lp, sens)
}

// buildMarginDecrease forces OPT to 1 when the margin decreases:
//
//	F[c] + M' * OPT[c] >= m0[c] + fmin[c]
//	-F[c] + M' * OPT[c] >= m0[c] - fmax[c]
func (f *UnoptimizedCnecFiller) buildMarginDecrease(lp *linearproblem.LinearProblem, c *domain.Cnec, side domain.Side) (bool, error) {
	fv, err := lp.FlowVariable(c, side)
	if isNotCreated(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	margin := f.prePerimeter.Margin(c, side, domain.Megawatt)
	if math.IsNaN(margin) {
		return false, nil
	}
	opt, err := lp.AddOptimizeCnecBinary(c, side)
	if err != nil {
		return false, err
	}
	if lb, ok := domain.LowerBound(c, side, domain.Megawatt); ok {
		con, err := lp.AddDontOptimizeCnecConstraint(margin+lb, linearproblem.Infinity(), c, side, linearproblem.BelowThreshold)
		if err != nil {
			return false, err
		}
		con.SetCoefficient(fv, 1)
		con.SetCoefficient(opt, f.decreaseBigM)
	}
	if ub, ok := domain.UpperBound(c, side, domain.Megawatt); ok {
		con, err := lp.AddDontOptimizeCnecConstraint(margin-ub, linearproblem.Infinity(), c, side, linearproblem.AboveThreshold)
		if err != nil {
			return false, err
		}
		con.SetCoefficient(fv, -1)
		con.SetCoefficient(opt, f.decreaseBigM)
	}
	return true, f.relaxMarginConstraints(lp, c, side, opt)
}

// buildPstLimitation creates the skeletons of the PST-limitation constraints;
// their sensitivity-dependent terms are written by refreshPstLimitation.
func (f *UnoptimizedCnecFiller) buildPstLimitation(lp *linearproblem.LinearProblem, c *domain.Cnec, side domain.Side) (bool, error) {
	fv, err := lp.FlowVariable(c, side)
	if isNotCreated(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, _, ok := f.securingPst(c); !ok {
		f.log.Warn().Str("cnec", c.ID).Msg("Securing PST is not available before the cnec state")
		return false, nil
	}
	opt, err := lp.AddOptimizeCnecBinary(c, side)
	if err != nil {
		return false, err
	}
	if _, ok := domain.LowerBound(c, side, domain.Megawatt); ok {
		con, err := lp.AddDontOptimizeCnecConstraint(math.Inf(-1), linearproblem.Infinity(), c, side, linearproblem.BelowThreshold)
		if err != nil {
			return false, err
		}
		con.SetCoefficient(fv, 1)
		con.SetCoefficient(opt, f.decreaseBigM)
	}
	if _, ok := domain.UpperBound(c, side, domain.Megawatt); ok {
		con, err := lp.AddDontOptimizeCnecConstraint(math.Inf(-1), linearproblem.Infinity(), c, side, linearproblem.AboveThreshold)
		if err != nil {
			return false, err
		}
		con.SetCoefficient(fv, -1)
		con.SetCoefficient(opt, f.decreaseBigM)
	}
	return true, f.relaxMarginConstraints(lp, c, side, opt)
}

// refreshPstLimitation evaluates the flow at the PST extreme given by the sign
// of the sensitivity:
//
//	F[c] - s * S[pst] + M' * OPT[c] >= fmin[c] - s * (s >= 0 ? Smax : Smin)
//	-F[c] + s * S[pst] + M' * OPT[c] >= -fmax[c] + s * (s >= 0 ? Smin : Smax)
func (f *UnoptimizedCnecFiller) refreshPstLimitation(lp *linearproblem.LinearProblem, sens domain.SensitivityResult) error {
	for _, cs := range cnecSides(f.securedByPsts) {
		if _, err := lp.OptimizeCnecBinary(cs.cnec, cs.side); isNotCreated(err) {
			continue
		} else if err != nil {
			return err
		}
		pst, state, _ := f.securingPst(cs.cnec)
		sv, err := lp.SetpointVariable(pst, state)
		if err != nil {
			return err
		}
		minSetpoint, maxSetpoint := sv.LB(), sv.UB()
		s := sens.Sensitivity(cs.cnec, cs.side, pst, domain.Megawatt)
		if math.Abs(s) < f.rangeActions.sensitivityThreshold(pst) {
			s = 0
		}

		if lb, ok := domain.LowerBound(cs.cnec, cs.side, domain.Megawatt); ok {
			con, err := lp.DontOptimizeCnecConstraint(cs.cnec, cs.side, linearproblem.BelowThreshold)
			if err != nil {
				return err
			}
			con.SetCoefficient(sv, -s)
			if s >= 0 {
				con.SetLB(lb - maxSetpoint*s)
			} else {
				con.SetLB(lb - minSetpoint*s)
			}
		}
		if ub, ok := domain.UpperBound(cs.cnec, cs.side, domain.Megawatt); ok {
			con, err := lp.DontOptimizeCnecConstraint(cs.cnec, cs.side, linearproblem.AboveThreshold)
			if err != nil {
				return err
			}
			con.SetCoefficient(sv, s)
			if s >= 0 {
				con.SetLB(-ub + minSetpoint*s)
			} else {
				con.SetLB(-ub + maxSetpoint*s)
			}
		}
	}
	return nil
}

// securingPst returns the PST paired with c in the latest state where it can
// act on c.
func (f *UnoptimizedCnecFiller) securingPst(c *domain.Cnec) (*domain.RangeAction, *domain.State, bool) {
	id := f.params.CnecsSecuredByTheirPst[c.ID]
	for _, state := range f.perimeter.StatesUpTo(c.State) {
		for _, ra := range f.perimeter.RangeActions(state) {
			if ra.ID == id {
				return ra, state, true
			}
		}
	}
	return nil, nil, false
}

// relaxMarginConstraints adds M * OPT to the margin constraints of c and
// raises their upper bound by M.
func (f *UnoptimizedCnecFiller) relaxMarginConstraints(lp *linearproblem.LinearProblem, c *domain.Cnec, side domain.Side, opt *linearproblem.Variable) error {
	lookups := []func(*domain.Cnec, domain.Side, linearproblem.MarginExtension) (*linearproblem.Constraint, error){
		lp.MinMarginConstraint,
		lp.MinRelMarginConstraint,
	}
	for _, lookup := range lookups {
		for _, ext := range []linearproblem.MarginExtension{linearproblem.BelowThreshold, linearproblem.AboveThreshold} {
			con, err := lookup(c, side, ext)
			if isNotCreated(err) {
				continue
			}
			if err != nil {
				return err
			}
			con.SetCoefficient(opt, f.bigM)
			con.SetUB(con.UB() + f.bigM)
		}
	}
	return nil
}

// Unoptimized reports whether the side of c may stay out of the worst margin
// for the given results. Cnecs of the operators not to optimise stay out while
// their margin is not below the pre-perimeter margin. Cnecs secured by a PST
// stay out while the PST can still absorb their margin deficit.
func (f *UnoptimizedCnecFiller) Unoptimized(lp *linearproblem.LinearProblem, c *domain.Cnec, side domain.Side, flows domain.FlowResult, sens domain.SensitivityResult, setpoints domain.SetpointResult) bool {
	if _, err := lp.OptimizeCnecBinary(c, side); err != nil {
		return false
	}
	if _, ok := f.params.CnecsSecuredByTheirPst[c.ID]; ok {
		return f.pstCanSecure(lp, c, side, flows, sens, setpoints)
	}
	pre := f.prePerimeter.Margin(c, side, domain.Megawatt)
	margin := flows.Margin(c, side, domain.Megawatt)
	return margin > pre-marginDecreaseTolerance*math.Abs(pre)
}

// pstCanSecure checks that moving the securing PST to the extreme of its
// range would bring both margins of c back to zero or more.
func (f *UnoptimizedCnecFiller) pstCanSecure(lp *linearproblem.LinearProblem, c *domain.Cnec, side domain.Side, flows domain.FlowResult, sens domain.SensitivityResult, setpoints domain.SetpointResult) bool {
	pst, state, ok := f.securingPst(c)
	if !ok {
		return false
	}
	sv, err := lp.SetpointVariable(pst, state)
	if err != nil {
		return false
	}
	flow := flows.Flow(c, side, domain.Megawatt)
	if math.IsNaN(flow) {
		return false
	}
	s := sens.Sensitivity(c, side, pst, domain.Megawatt)
	current := setpoints.Setpoint(pst, state)
	// Flow the PST can still remove or add.
	down, up := s*(current-sv.LB()), s*(sv.UB()-current)
	if s < 0 {
		down, up = -s*(sv.UB()-current), -s*(current-sv.LB())
	}
	if ub, ok := domain.UpperBound(c, side, domain.Megawatt); ok && ub-flow+down < 0 {
		return false
	}
	if lb, ok := domain.LowerBound(c, side, domain.Megawatt); ok && flow-lb+up < 0 {
		return false
	}
	return true
}

// ExcludedCnecs lists the cnec ids the filler may leave out of the objective.
func (f *UnoptimizedCnecFiller) ExcludedCnecs() []string {
	var ids []string
	for _, c := range f.marginCnecs {
		ids = append(ids, c.ID)
	}
	for _, c := range f.securedByPsts {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

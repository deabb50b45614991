package fillers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

func TestUnoptimizedCnecFiller_MarginDecrease(t *testing.T) {
	state := preventiveState(t)
	cnec := newCnec(t, "cnec1", state, -100, 100, func(c *domain.Cnec) { c.Operator = "opX" })
	other := newCnec(t, "cnec2", state, -200, 200)
	p := newPerimeter(t, state, []*domain.Cnec{cnec, other}, nil, nil)
	pre := flows(map[string]float64{"cnec1": 50, "cnec2": 0})
	params := UnoptimizedCnecParameters{OperatorsNotToOptimize: []string{"opX"}}

	filler := NewUnoptimizedCnecFiller(zerolog.Nop(), p, pre, params, DefaultRangeActionParameters())
	lp := fill(t, pre, domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinMarginFiller(zerolog.Nop(), p, domain.Megawatt),
		filler,
	)
	assert.Equal(t, []string{"cnec1"}, filler.ExcludedCnecs())

	bigM, decreaseBigM := 2*200.0, 20*200.0
	opt, err := lp.OptimizeCnecBinary(cnec, domain.SideLeft)
	require.NoError(t, err)
	fv, err := lp.FlowVariable(cnec, domain.SideLeft)
	require.NoError(t, err)

	below, err := lp.DontOptimizeCnecConstraint(cnec, domain.SideLeft, linearproblem.BelowThreshold)
	require.NoError(t, err)
	assert.Equal(t, 50.0-100, below.LB())
	assert.Equal(t, 1.0, below.Coefficient(fv))
	assert.Equal(t, decreaseBigM, below.Coefficient(opt))

	above, err := lp.DontOptimizeCnecConstraint(cnec, domain.SideLeft, linearproblem.AboveThreshold)
	require.NoError(t, err)
	assert.Equal(t, 50.0-100, above.LB())
	assert.Equal(t, -1.0, above.Coefficient(fv))
	assert.Equal(t, decreaseBigM, above.Coefficient(opt))

	margin, err := lp.MinMarginConstraint(cnec, domain.SideLeft, linearproblem.AboveThreshold)
	require.NoError(t, err)
	assert.Equal(t, 100+bigM, margin.UB())
	assert.Equal(t, bigM, margin.Coefficient(opt))

	_, err = lp.OptimizeCnecBinary(other, domain.SideLeft)
	assert.ErrorIs(t, err, linearproblem.ErrNotCreated)

	// cnec1 keeps its pre-perimeter margin of 50, so it can leave the
	// objective and the minimum margin is the one of cnec2.
	require.Equal(t, linearproblem.StatusOptimal, lp.Solve(context.Background()))
	mm, err := lp.MinMarginVariable()
	require.NoError(t, err)
	assert.InDelta(t, 200, mm.SolutionValue(), 1e-6)
	assert.InDelta(t, 0, opt.SolutionValue(), 1e-6)
}

func TestUnoptimizedCnecFiller_LargeMarginDecrease(t *testing.T) {
	// Relieving cnec2 pushes cnec1 well past 2 * 100 MW of margin decrease.
	state := preventiveState(t)
	cnec := newCnec(t, "cnec1", state, -100, 100, func(c *domain.Cnec) { c.Operator = "opX" })
	other := newCnec(t, "cnec2", state, -100, 100)
	hvdc := newRangeAction(t, "hvdc1", "opA", domain.HvdcAction, -1000, 1000)
	p := newPerimeter(t, state, []*domain.Cnec{cnec, other}, nil, map[*domain.State][]*domain.RangeAction{state: {hvdc}})
	pre := flows(map[string]float64{"cnec1": 0, "cnec2": 500})
	sens := sensitivities(map[string]map[string]float64{
		"cnec1": {"hvdc1": 1},
		"cnec2": {"hvdc1": -1},
	})
	params := UnoptimizedCnecParameters{OperatorsNotToOptimize: []string{"opX"}}

	lp := fill(t, pre, sens,
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinMarginFiller(zerolog.Nop(), p, domain.Megawatt),
		NewUnoptimizedCnecFiller(zerolog.Nop(), p, pre, params, DefaultRangeActionParameters()),
	)

	require.Equal(t, linearproblem.StatusOptimal, lp.Solve(context.Background()))
	sv, err := lp.SetpointVariable(hvdc, state)
	require.NoError(t, err)
	mm, err := lp.MinMarginVariable()
	require.NoError(t, err)
	opt, err := lp.OptimizeCnecBinary(cnec, domain.SideLeft)
	require.NoError(t, err)

	// Both cnecs end 150 MW overloaded; with M = 200 the setpoint would stop at 200.
	assert.InDelta(t, 250, sv.SolutionValue(), 1e-4)
	assert.InDelta(t, -150, mm.SolutionValue(), 1e-4)
	assert.InDelta(t, 1, opt.SolutionValue(), 1e-6)
}

func pstLimitationCase(t *testing.T) (*linearproblem.LinearProblem, *domain.Cnec, *domain.RangeAction, *domain.State) {
	t.Helper()
	state := preventiveState(t)
	cnec := newCnec(t, "cnec1", state, -100, 100)
	pst := newPst(t, "pst1", nonUniformTaps, 0)
	p := newPerimeter(t, state, []*domain.Cnec{cnec}, nil, map[*domain.State][]*domain.RangeAction{state: {pst}})
	params := UnoptimizedCnecParameters{CnecsSecuredByTheirPst: map[string]string{"cnec1": "pst1"}}
	f := flows(map[string]float64{"cnec1": 20})
	sens := sensitivities(map[string]map[string]float64{"cnec1": {"pst1": 10}})

	lp := fill(t, f, sens,
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinMarginFiller(zerolog.Nop(), p, domain.Megawatt),
		NewUnoptimizedCnecFiller(zerolog.Nop(), p, f, params, DefaultRangeActionParameters()),
	)
	return lp, cnec, pst, state
}

func TestUnoptimizedCnecFiller_PstLimitation(t *testing.T) {
	lp, cnec, pst, state := pstLimitationCase(t)
	sv, err := lp.SetpointVariable(pst, state)
	require.NoError(t, err)
	opt, err := lp.OptimizeCnecBinary(cnec, domain.SideLeft)
	require.NoError(t, err)
	minS, maxS := sv.LB(), sv.UB()

	below, err := lp.DontOptimizeCnecConstraint(cnec, domain.SideLeft, linearproblem.BelowThreshold)
	require.NoError(t, err)
	assert.Equal(t, -10.0, below.Coefficient(sv))
	assert.Equal(t, 2000.0, below.Coefficient(opt))
	assert.InDelta(t, -100-maxS*10, below.LB(), 1e-9)

	above, err := lp.DontOptimizeCnecConstraint(cnec, domain.SideLeft, linearproblem.AboveThreshold)
	require.NoError(t, err)
	assert.Equal(t, 10.0, above.Coefficient(sv))
	assert.InDelta(t, -100+minS*10, above.LB(), 1e-9)

	// A negative sensitivity switches the setpoint extreme of both constraints.
	negative := sensitivities(map[string]map[string]float64{"cnec1": {"pst1": -10}})
	require.NoError(t, lp.Update(flows(map[string]float64{"cnec1": 20}), negative, domain.NewSetpointSnapshot()))
	assert.Equal(t, 10.0, below.Coefficient(sv))
	assert.InDelta(t, -100+minS*10, below.LB(), 1e-9)
	assert.Equal(t, -10.0, above.Coefficient(sv))
	assert.InDelta(t, -100-maxS*10, above.LB(), 1e-9)
}

func TestUnoptimizedCnecFiller_MissingPstIsSkipped(t *testing.T) {
	state := preventiveState(t)
	cnec := newCnec(t, "cnec1", state, -100, 100)
	p := newPerimeter(t, state, []*domain.Cnec{cnec}, nil, nil)
	params := UnoptimizedCnecParameters{CnecsSecuredByTheirPst: map[string]string{"cnec1": "unknown"}}
	f := flows(map[string]float64{"cnec1": 20})

	lp := fill(t, f, domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinMarginFiller(zerolog.Nop(), p, domain.Megawatt),
		NewUnoptimizedCnecFiller(zerolog.Nop(), p, f, params, DefaultRangeActionParameters()),
	)
	_, err := lp.OptimizeCnecBinary(cnec, domain.SideLeft)
	assert.ErrorIs(t, err, linearproblem.ErrNotCreated)
}

package fillers

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

func marginPerimeter(t *testing.T) (*domain.Perimeter, *domain.State, *domain.Cnec, *domain.RangeAction) {
	t.Helper()
	state := preventiveState(t)
	cnec := newCnec(t, "cnec1", state, -300, 400)
	pst := newPst(t, "pst1", uniformTaps, 0)
	p := newPerimeter(t, state, []*domain.Cnec{cnec}, nil, map[*domain.State][]*domain.RangeAction{state: {pst}})
	return p, state, cnec, pst
}

func TestMaxMinMarginFiller_Megawatt(t *testing.T) {
	p, _, cnec, _ := marginPerimeter(t)
	lp := fill(t, flows(map[string]float64{"cnec1": 100}), domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinMarginFiller(zerolog.Nop(), p, domain.Megawatt),
	)

	mm, err := lp.MinMarginVariable()
	require.NoError(t, err)
	fv, err := lp.FlowVariable(cnec, domain.SideLeft)
	require.NoError(t, err)
	assert.True(t, math.IsInf(mm.LB(), -1))
	assert.Equal(t, -1.0, lp.Objective().Coefficient(mm))

	below, err := lp.MinMarginConstraint(cnec, domain.SideLeft, linearproblem.BelowThreshold)
	require.NoError(t, err)
	assert.Equal(t, 300.0, below.UB())
	assert.True(t, math.IsInf(below.LB(), -1))
	assert.Equal(t, -1.0, below.Coefficient(fv))
	assert.Equal(t, 1.0, below.Coefficient(mm))

	above, err := lp.MinMarginConstraint(cnec, domain.SideLeft, linearproblem.AboveThreshold)
	require.NoError(t, err)
	assert.Equal(t, 400.0, above.UB())
	assert.Equal(t, 1.0, above.Coefficient(fv))

	require.Equal(t, linearproblem.StatusOptimal, lp.Solve(context.Background()))
	assert.InDelta(t, 300, mm.SolutionValue(), 1e-6)
}

func TestMaxMinMarginFiller_Ampere(t *testing.T) {
	p, _, cnec, _ := marginPerimeter(t)
	lp := fill(t, flows(map[string]float64{"cnec1": 100}), domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinMarginFiller(zerolog.Nop(), p, domain.Ampere),
	)
	mm, err := lp.MinMarginVariable()
	require.NoError(t, err)
	above, err := lp.MinMarginConstraint(cnec, domain.SideLeft, linearproblem.AboveThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 400*math.Sqrt(3)/1000, above.Coefficient(mm), 1e-12)
}

func TestMaxMinMarginFiller_SkipsNonOptimizedCnecs(t *testing.T) {
	state := preventiveState(t)
	monitored := newCnec(t, "mnec1", state, -100, 100, func(c *domain.Cnec) {
		c.Optimized = false
		c.Monitored = true
	})
	p := newPerimeter(t, state, []*domain.Cnec{monitored}, nil, nil)
	lp := fill(t, flows(map[string]float64{"mnec1": 0}), domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinMarginFiller(zerolog.Nop(), p, domain.Megawatt),
	)
	_, err := lp.MinMarginConstraint(monitored, domain.SideLeft, linearproblem.AboveThreshold)
	assert.ErrorIs(t, err, linearproblem.ErrNotCreated)
}

func TestMaxMinRelativeMarginFiller(t *testing.T) {
	p, _, cnec, _ := marginPerimeter(t)
	f := flows(map[string]float64{"cnec1": 100})
	f.PtdfSums[domain.FlowKey{CnecID: "cnec1", Side: domain.SideLeft}] = 0.5
	params := RelativeMarginParameters{PtdfSumLowerBound: 0.02, PtdfApproximation: UpdatePtdfWithTopoAndPst}

	lp := fill(t, f, domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinRelativeMarginFiller(zerolog.Nop(), p, domain.Megawatt, params),
	)
	assert.Equal(t, 6, lp.NumVariables())
	assert.Equal(t, 9, lp.NumConstraints())

	mm, err := lp.MinMarginVariable()
	require.NoError(t, err)
	assert.Equal(t, 0.0, mm.UB())

	bigM := 2 * 400.0
	mrm, err := lp.MinRelMarginVariable()
	require.NoError(t, err)
	assert.InDelta(t, bigM/0.02, mrm.UB(), 1e-9)
	assert.Equal(t, -1.0, lp.Objective().Coefficient(mrm))
	assert.Equal(t, -1.0, lp.Objective().Coefficient(mm))

	above, err := lp.MinRelMarginConstraint(cnec, domain.SideLeft, linearproblem.AboveThreshold)
	require.NoError(t, err)
	assert.Equal(t, 400.0, above.UB())
	assert.InDelta(t, 0.5, above.Coefficient(mrm), 1e-12)

	positive, err := lp.MinRelMarginSignBinary()
	require.NoError(t, err)
	sign, err := lp.MinRelMarginSignDefinitionConstraint()
	require.NoError(t, err)
	assert.Equal(t, -bigM, sign.LB())
	assert.Equal(t, -bigM, sign.Coefficient(positive))
	zero, err := lp.MinRelMarginSetToZeroConstraint()
	require.NoError(t, err)
	assert.InDelta(t, -bigM/0.02, zero.Coefficient(positive), 1e-9)

	// A PTDF sum below the lower bound is replaced by the bound.
	f2 := flows(map[string]float64{"cnec1": 100})
	f2.PtdfSums[domain.FlowKey{CnecID: "cnec1", Side: domain.SideLeft}] = 0.001
	require.NoError(t, lp.Update(f2, domain.NewSensitivitySnapshot(), domain.NewSetpointSnapshot()))
	assert.InDelta(t, 0.02, above.Coefficient(mrm), 1e-12)

	require.Equal(t, linearproblem.StatusOptimal, lp.Solve(context.Background()))
	assert.InDelta(t, 0, mm.SolutionValue(), 1e-6)
	assert.InDelta(t, 300/0.02, mrm.SolutionValue(), 1e-3)
}

func TestMaxMinRelativeMarginFiller_FixedPtdfIsNotRefreshed(t *testing.T) {
	p, _, cnec, _ := marginPerimeter(t)
	f := flows(map[string]float64{"cnec1": 100})
	f.PtdfSums[domain.FlowKey{CnecID: "cnec1", Side: domain.SideLeft}] = 0.5
	lp := fill(t, f, domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMaxMinRelativeMarginFiller(zerolog.Nop(), p, domain.Megawatt, RelativeMarginParameters{PtdfSumLowerBound: 0.02}),
	)

	f2 := flows(map[string]float64{"cnec1": 100})
	f2.PtdfSums[domain.FlowKey{CnecID: "cnec1", Side: domain.SideLeft}] = 0.9
	require.NoError(t, lp.Update(f2, domain.NewSensitivitySnapshot(), domain.NewSetpointSnapshot()))

	mrm, err := lp.MinRelMarginVariable()
	require.NoError(t, err)
	below, err := lp.MinRelMarginConstraint(cnec, domain.SideLeft, linearproblem.BelowThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, below.Coefficient(mrm), 1e-12)
}

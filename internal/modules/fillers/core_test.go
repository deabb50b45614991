package fillers

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

type coreCase struct {
	state        *domain.State
	cnec1, cnec2 *domain.Cnec
	pst          *domain.RangeAction
	perimeter    *domain.Perimeter
	flows        *domain.FlowSnapshot
	sens         *domain.SensitivitySnapshot
}

func newCoreCase(t *testing.T) coreCase {
	preventive := preventiveState(t)
	c := coreCase{
		state: preventive,
		cnec1: newCnec(t, "cnec1", preventive, -1000, 1000),
		cnec2: newCnec(t, "cnec2", preventive, -1000, 1000),
		pst:   newPst(t, "pst1", nonUniformTaps, 1),
	}
	c.perimeter = newPerimeter(t, preventive, []*domain.Cnec{c.cnec1, c.cnec2}, nil,
		map[*domain.State][]*domain.RangeAction{preventive: {c.pst}})
	c.flows = flows(map[string]float64{"cnec1": 500, "cnec2": 300})
	c.sens = sensitivities(map[string]map[string]float64{
		"cnec1": {"pst1": 2.0},
		"cnec2": {"pst1": 5.0},
	})
	return c
}

func TestCoreFiller_FlowConstraints(t *testing.T) {
	c := newCoreCase(t)
	core := NewCoreFiller(zerolog.Nop(), c.perimeter, domain.NewSetpointSnapshot(), DefaultRangeActionParameters())
	lp := fill(t, c.flows, c.sens, core)

	assert.Equal(t, 4, lp.NumVariables())
	assert.Equal(t, 4, lp.NumConstraints())
	sv, err := lp.SetpointVariable(c.pst, c.state)
	require.NoError(t, err)

	alpha := c.pst.InitialSetpoint
	require.InDelta(t, 2.0, alpha, 1e-12)

	for _, tc := range []struct {
		cnec *domain.Cnec
		ref  float64
		sens float64
	}{
		{c.cnec1, 500, 2.0},
		{c.cnec2, 300, 5.0},
	} {
		con, err := lp.FlowConstraint(tc.cnec, domain.SideLeft)
		require.NoError(t, err)
		fv, err := lp.FlowVariable(tc.cnec, domain.SideLeft)
		require.NoError(t, err)

		assert.InDelta(t, tc.ref-alpha*tc.sens, con.LB(), 1e-9)
		assert.InDelta(t, tc.ref-alpha*tc.sens, con.UB(), 1e-9)
		assert.Equal(t, 1.0, con.Coefficient(fv))
		assert.Equal(t, -tc.sens, con.Coefficient(sv))
	}
}

func TestCoreFiller_FiltersSmallSensitivities(t *testing.T) {
	c := newCoreCase(t)
	params := DefaultRangeActionParameters()
	params.PstSensitivityThreshold = 2.5
	lp := fill(t, c.flows, c.sens, NewCoreFiller(zerolog.Nop(), c.perimeter, domain.NewSetpointSnapshot(), params))

	sv, err := lp.SetpointVariable(c.pst, c.state)
	require.NoError(t, err)

	con1, err := lp.FlowConstraint(c.cnec1, domain.SideLeft)
	require.NoError(t, err)
	assert.Equal(t, 0.0, con1.Coefficient(sv))
	assert.InDelta(t, 500, con1.LB(), 1e-9)
	assert.InDelta(t, 500, con1.UB(), 1e-9)

	con2, err := lp.FlowConstraint(c.cnec2, domain.SideLeft)
	require.NoError(t, err)
	assert.Equal(t, -5.0, con2.Coefficient(sv))
	assert.InDelta(t, 290, con2.LB(), 1e-9)
}

func TestCoreFiller_RangeActionVariables(t *testing.T) {
	c := newCoreCase(t)
	params := DefaultRangeActionParameters()
	lp := fill(t, c.flows, c.sens, NewCoreFiller(zerolog.Nop(), c.perimeter, domain.NewSetpointSnapshot(), params))

	sv, err := lp.SetpointVariable(c.pst, c.state)
	require.NoError(t, err)
	assert.InDelta(t, -5.8, sv.LB(), 1e-4)
	assert.InDelta(t, 5.8, sv.UB(), 1e-4)

	av, err := lp.AbsoluteVariationVariable(c.pst, c.state)
	require.NoError(t, err)
	assert.Equal(t, 0.0, av.LB())
	assert.True(t, math.IsInf(av.UB(), 1))
	assert.Equal(t, params.PstPenaltyCost, lp.Objective().Coefficient(av))

	negative, err := lp.AbsoluteVariationConstraint(c.pst, c.state, linearproblem.Negative)
	require.NoError(t, err)
	assert.InDelta(t, -2.0, negative.LB(), 1e-12)
	assert.True(t, math.IsInf(negative.UB(), 1))
	assert.Equal(t, 1.0, negative.Coefficient(av))
	assert.Equal(t, -1.0, negative.Coefficient(sv))

	positive, err := lp.AbsoluteVariationConstraint(c.pst, c.state, linearproblem.Positive)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, positive.LB(), 1e-12)
	assert.True(t, math.IsInf(positive.UB(), 1))
	assert.Equal(t, 1.0, positive.Coefficient(sv))
}

func TestCoreFiller_FailedSensitivityHasNoFlowVariable(t *testing.T) {
	c := newCoreCase(t)
	c.sens.FailedStates[c.state.ID] = true
	lp := fill(t, c.flows, c.sens, NewCoreFiller(zerolog.Nop(), c.perimeter, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()))

	_, err := lp.FlowVariable(c.cnec1, domain.SideLeft)
	require.Error(t, err)
	assert.Equal(t, "Variable cnec1_left_flow_variable has not been created yet", err.Error())
}

func TestCoreFiller_CurativeStateUsesLatestSetpoint(t *testing.T) {
	preventive := preventiveState(t)
	curative := curativeState(t, "co1")
	cnec := newCnec(t, "cnec1", curative, -1000, 1000)
	prevPst := newPst(t, "pst1", nonUniformTaps, 0, func(ra *domain.RangeAction) {
		ra.Ranges = []domain.Range{{Type: domain.RangeRelativeToPrevious, Min: -1, Max: 1}}
	})
	curPst := newPst(t, "pst1_curative", nonUniformTaps, 0, func(ra *domain.RangeAction) {
		ra.NetworkElement = "ne_pst1"
		ra.Ranges = []domain.Range{{Type: domain.RangeRelativeToPrevious, Min: -1, Max: 1}}
	})
	perimeter := newPerimeter(t, preventive, []*domain.Cnec{cnec}, nil, map[*domain.State][]*domain.RangeAction{
		preventive: {prevPst},
		curative:   {curPst},
	})
	sens := sensitivities(map[string]map[string]float64{"cnec1": {"pst1": 3, "pst1_curative": 3}})
	lp := fill(t, flows(map[string]float64{"cnec1": 100}), sens,
		NewCoreFiller(zerolog.Nop(), perimeter, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()))

	con, err := lp.FlowConstraint(cnec, domain.SideLeft)
	require.NoError(t, err)
	prevVar, err := lp.SetpointVariable(prevPst, preventive)
	require.NoError(t, err)
	curVar, err := lp.SetpointVariable(curPst, curative)
	require.NoError(t, err)
	assert.Equal(t, 0.0, con.Coefficient(prevVar))
	assert.Equal(t, -3.0, con.Coefficient(curVar))

	rel, err := lp.RelativeSetpointConstraint(curPst, curative)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rel.Coefficient(curVar))
	assert.Equal(t, -1.0, rel.Coefficient(prevVar))
	step := domain.SmallestAngleStep(curPst)
	assert.InDelta(t, -step, rel.LB(), 1e-9)
	assert.InDelta(t, step, rel.UB(), 1e-9)

	negative, err := lp.AbsoluteVariationConstraint(curPst, curative, linearproblem.Negative)
	require.NoError(t, err)
	assert.Equal(t, 0.0, negative.LB())
	assert.Equal(t, 1.0, negative.Coefficient(prevVar))
}

func TestCoreFiller_UpdateIsIdempotent(t *testing.T) {
	c := newCoreCase(t)
	lp := fill(t, c.flows, c.sens, NewCoreFiller(zerolog.Nop(), c.perimeter, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()))

	setpoints := domain.NewSetpointSnapshot()
	setpoints.PerState[domain.SetpointKey{ActionID: "pst1", StateID: c.state.ID}] = 3.9
	newFlows := flows(map[string]float64{"cnec1": 520, "cnec2": 310})

	require.NoError(t, lp.Update(newFlows, c.sens, setpoints))
	first := modelState(lp)
	require.NoError(t, lp.Update(newFlows, c.sens, setpoints))
	assert.Equal(t, first, modelState(lp))

	con, err := lp.FlowConstraint(c.cnec1, domain.SideLeft)
	require.NoError(t, err)
	assert.InDelta(t, 520-2*3.9, con.LB(), 1e-9)
}

func TestCoreFiller_RangeShrinking(t *testing.T) {
	c := newCoreCase(t)
	params := DefaultRangeActionParameters()
	params.RangeShrinking = true
	lp := fill(t, c.flows, c.sens, NewCoreFiller(zerolog.Nop(), c.perimeter, domain.NewSetpointSnapshot(), params))

	_, err := lp.IterativeShrinkConstraint(c.pst, c.state)
	require.Error(t, err)

	setpoints := domain.NewSetpointSnapshot()
	setpoints.PerState[domain.SetpointKey{ActionID: "pst1", StateID: c.state.ID}] = 2.0
	require.NoError(t, lp.Update(c.flows, c.sens, setpoints))

	con, err := lp.IterativeShrinkConstraint(c.pst, c.state)
	require.NoError(t, err)
	width := 11.6 * rangeShrinkRate
	assert.InDelta(t, 2.0-width, con.LB(), 1e-9)
	assert.InDelta(t, 2.0+width, con.UB(), 1e-9)

	require.NoError(t, lp.Update(c.flows, c.sens, setpoints))
	width *= rangeShrinkRate
	assert.InDelta(t, 2.0+width, con.UB(), 1e-9)
}

func TestCoreFiller_DiscretePstsSkipRelativeSetpointConstraint(t *testing.T) {
	preventive := preventiveState(t)
	curative := curativeState(t, "co1")
	relative := func(ra *domain.RangeAction) {
		ra.NetworkElement = "ne_pst"
		ra.Ranges = []domain.Range{{Type: domain.RangeRelativeToPrevious, Min: -1, Max: 1}}
	}
	prevPst := newPst(t, "pst1", nonUniformTaps, 0, relative)
	curPst := newPst(t, "pst1_cur", nonUniformTaps, 0, relative)
	cnec := newCnec(t, "cnec1", curative, -500, 500)
	p := newPerimeter(t, preventive, []*domain.Cnec{cnec}, nil, map[*domain.State][]*domain.RangeAction{
		preventive: {prevPst},
		curative:   {curPst},
	})
	pre := domain.NewSetpointSnapshot()
	lp := fill(t, flows(map[string]float64{"cnec1": 0}), domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, pre, DefaultRangeActionParameters()).WithDiscretePsts(),
		NewDiscreteTapFiller(zerolog.Nop(), p, pre),
	)

	_, err := lp.RelativeSetpointConstraint(curPst, curative)
	assert.Error(t, err, "the tap constraint carries the relative range")
	rel, err := lp.RelativeTapConstraint(curPst, curative)
	require.NoError(t, err)
	assert.Equal(t, -1.0, rel.LB())
	assert.Equal(t, 1.0, rel.UB())
}

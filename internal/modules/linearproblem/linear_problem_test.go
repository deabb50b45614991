package linearproblem

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/domain"
)

type recordingFiller struct {
	fills   int
	updates int
	err     error
}

func (f *recordingFiller) Fill(lp *LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult) error {
	f.fills++
	if f.err != nil {
		return f.err
	}
	if _, err := lp.MinMarginVariable(); err == nil {
		return nil
	}
	v, err := lp.AddMinMarginVariable(-10, 10)
	if err != nil {
		return err
	}
	lp.Objective().SetCoefficient(v, -1)
	return nil
}

func (f *recordingFiller) Update(_ *LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult, _ domain.SetpointResult) error {
	f.updates++
	return f.err
}

func testCnec(t *testing.T) *domain.Cnec {
	t.Helper()
	state, err := domain.NewState("", domain.PreventiveInstant)
	require.NoError(t, err)
	c, err := domain.NewCnec(domain.Cnec{
		ID:         "cnec1",
		State:      state,
		Thresholds: []domain.Threshold{{Side: domain.SideLeft, Unit: domain.Megawatt, Min: -100, Max: 100}},
		Optimized:  true,
	})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsEmptyChain(t *testing.T) {
	_, err := New(zerolog.Nop())
	assert.Error(t, err)

	_, err = New(zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestLinearProblem_UpdateBeforeFill(t *testing.T) {
	f := &recordingFiller{}
	lp, err := New(zerolog.Nop(), f)
	require.NoError(t, err)

	err = lp.Update(domain.NewFlowSnapshot(), domain.NewSensitivitySnapshot(), domain.NewSetpointSnapshot())

	assert.ErrorIs(t, err, ErrNotFilled)
	assert.Zero(t, f.updates)
}

func TestLinearProblem_FillThenUpdate(t *testing.T) {
	first, second := &recordingFiller{}, &recordingFiller{}
	lp, err := New(zerolog.Nop(), first, &noopFiller{}, second)
	require.NoError(t, err)

	require.NoError(t, lp.Fill(domain.NewFlowSnapshot(), domain.NewSensitivitySnapshot()))
	assert.Error(t, lp.Fill(domain.NewFlowSnapshot(), domain.NewSensitivitySnapshot()))
	assert.True(t, lp.Filled())
	assert.Equal(t, 1, first.fills)

	require.NoError(t, lp.Update(domain.NewFlowSnapshot(), domain.NewSensitivitySnapshot(), domain.NewSetpointSnapshot()))
	require.NoError(t, lp.Update(domain.NewFlowSnapshot(), domain.NewSensitivitySnapshot(), domain.NewSetpointSnapshot()))
	assert.Equal(t, 2, first.updates)
	assert.Equal(t, 2, second.updates)
}

func TestLinearProblem_FillerErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	lp, err := New(zerolog.Nop(), &recordingFiller{err: boom})
	require.NoError(t, err)

	err = lp.Fill(domain.NewFlowSnapshot(), domain.NewSensitivitySnapshot())

	assert.ErrorIs(t, err, boom)
	assert.False(t, lp.Filled())
}

func TestLinearProblem_Solve(t *testing.T) {
	lp, err := New(zerolog.Nop(), &recordingFiller{})
	require.NoError(t, err)
	assert.Equal(t, StatusNotSolved, lp.Solve(context.Background()))

	require.NoError(t, lp.Fill(domain.NewFlowSnapshot(), domain.NewSensitivitySnapshot()))
	require.Equal(t, StatusOptimal, lp.Solve(context.Background()))

	v, err := lp.MinMarginVariable()
	require.NoError(t, err)
	assert.InDelta(t, 10, v.SolutionValue(), 1e-9)
}

func TestLinearProblem_MissingFlowVariable(t *testing.T) {
	lp, err := New(zerolog.Nop(), &noopFiller{})
	require.NoError(t, err)
	c := testCnec(t)

	_, err = lp.FlowVariable(c, domain.SideLeft)
	require.Error(t, err)
	assert.Equal(t, "Variable cnec1_left_flow_variable has not been created yet", err.Error())

	_, err = lp.FlowConstraint(c, domain.SideRight)
	require.Error(t, err)
	assert.Equal(t, "Constraint cnec1_right_flow_constraint has not been created yet", err.Error())
}

type noopFiller struct{}

func (noopFiller) Fill(*LinearProblem, domain.FlowResult, domain.SensitivityResult) error { return nil }
func (noopFiller) Update(*LinearProblem, domain.FlowResult, domain.SensitivityResult, domain.SetpointResult) error {
	return nil
}

package fillers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

func loopFlowCase(t *testing.T, params LoopFlowParameters) (*linearproblem.LinearProblem, *domain.Cnec) {
	t.Helper()
	state := preventiveState(t)
	cnec := newCnec(t, "lf1", state, -1000, 1000, func(c *domain.Cnec) {
		c.LoopFlowThreshold = &domain.LoopFlowThreshold{Value: 100, Unit: domain.Megawatt}
	})
	other := newCnec(t, "cnec2", state, -1000, 1000)
	p := newPerimeter(t, state, []*domain.Cnec{cnec, other}, []*domain.Cnec{cnec}, nil)

	initial := flows(map[string]float64{"lf1": 80, "cnec2": 0})
	current := flows(map[string]float64{"lf1": 90, "cnec2": 0})
	current.CommercialFlows[domain.FlowKey{CnecID: "lf1", Side: domain.SideLeft}] = 10

	lp := fill(t, current, domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewLoopFlowFiller(zerolog.Nop(), p, initial, params),
	)
	return lp, cnec
}

func TestLoopFlowFiller_Fill(t *testing.T) {
	lp, cnec := loopFlowCase(t, LoopFlowParameters{AcceptableIncrease: 30, ViolationCost: 10})

	fv, err := lp.FlowVariable(cnec, domain.SideLeft)
	require.NoError(t, err)
	viol, err := lp.LoopFlowViolationVariable(cnec, domain.SideLeft)
	require.NoError(t, err)
	assert.Equal(t, 10.0, lp.Objective().Coefficient(viol))

	// max(100, |80| + 30) = 110 around a commercial flow of 10.
	upper, err := lp.MaxLoopFlowConstraint(cnec, domain.SideLeft, linearproblem.UpperBound)
	require.NoError(t, err)
	assert.InDelta(t, 110+10+loopFlowTolerance, upper.UB(), 1e-9)
	assert.Equal(t, 1.0, upper.Coefficient(fv))
	assert.Equal(t, -1.0, upper.Coefficient(viol))

	lower, err := lp.MaxLoopFlowConstraint(cnec, domain.SideLeft, linearproblem.LowerBound)
	require.NoError(t, err)
	assert.InDelta(t, -110+10-loopFlowTolerance, lower.LB(), 1e-9)
	assert.Equal(t, 1.0, lower.Coefficient(viol))
}

func TestLoopFlowFiller_UpdateDependsOnApproximation(t *testing.T) {
	next := flows(map[string]float64{"lf1": 90, "cnec2": 0})
	next.CommercialFlows[domain.FlowKey{CnecID: "lf1", Side: domain.SideLeft}] = -20

	tests := []struct {
		name          string
		approximation PtdfApproximation
		wantUB        float64
	}{
		{"fixed ptdf keeps bounds", FixedPtdf, 110 + 10 + loopFlowTolerance},
		{"topology only keeps bounds", UpdatePtdfWithTopo, 110 + 10 + loopFlowTolerance},
		{"topology and pst refreshes bounds", UpdatePtdfWithTopoAndPst, 110 - 20 + loopFlowTolerance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lp, cnec := loopFlowCase(t, LoopFlowParameters{AcceptableIncrease: 30, PtdfApproximation: tc.approximation})
			require.NoError(t, lp.Update(next, domain.NewSensitivitySnapshot(), domain.NewSetpointSnapshot()))

			upper, err := lp.MaxLoopFlowConstraint(cnec, domain.SideLeft, linearproblem.UpperBound)
			require.NoError(t, err)
			assert.InDelta(t, tc.wantUB, upper.UB(), 1e-9)
		})
	}
}

func TestLoopFlowFiller_ThresholdAboveInitialLoopFlow(t *testing.T) {
	lp, cnec := loopFlowCase(t, LoopFlowParameters{AcceptableIncrease: 5, ConstraintAdjustmentCoefficient: 2})
	upper, err := lp.MaxLoopFlowConstraint(cnec, domain.SideLeft, linearproblem.UpperBound)
	require.NoError(t, err)
	assert.InDelta(t, 100-2+10+loopFlowTolerance, upper.UB(), 1e-9)
}

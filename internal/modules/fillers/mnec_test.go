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

func TestMnecFiller(t *testing.T) {
	state := preventiveState(t)
	monitored := func(c *domain.Cnec) {
		c.Optimized = false
		c.Monitored = true
	}
	mnec1 := newCnec(t, "mnec1", state, -1000, 1000, monitored)
	mnec2 := newCnec(t, "mnec2", state, -100, 100, monitored)
	optimized := newCnec(t, "cnec1", state, -500, 500)
	p := newPerimeter(t, state, []*domain.Cnec{mnec1, mnec2, optimized}, nil, nil)

	initial := flows(map[string]float64{"mnec1": 900, "mnec2": -200, "cnec1": 0})
	params := MnecParameters{AcceptableMarginDecrease: 50, ViolationCost: 10, ConstraintAdjustmentCoefficient: 3.5}
	lp := fill(t, initial, domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMnecFiller(zerolog.Nop(), p, initial, params, domain.Megawatt),
	)

	tests := []struct {
		cnec  *domain.Cnec
		upper float64
		lower float64
	}{
		{mnec1, 996.5, -996.5},
		{mnec2, 96.5, -246.5},
	}
	for _, tc := range tests {
		t.Run(tc.cnec.ID, func(t *testing.T) {
			viol, err := lp.MnecViolationVariable(tc.cnec, domain.SideLeft)
			require.NoError(t, err)
			assert.Equal(t, 0.0, viol.LB())
			assert.True(t, math.IsInf(viol.UB(), 1))
			assert.Equal(t, 10.0, lp.Objective().Coefficient(viol))
			fv, err := lp.FlowVariable(tc.cnec, domain.SideLeft)
			require.NoError(t, err)

			below, err := lp.MnecFlowConstraint(tc.cnec, domain.SideLeft, linearproblem.BelowThreshold)
			require.NoError(t, err)
			assert.InDelta(t, tc.upper, below.UB(), 1e-9)
			assert.True(t, math.IsInf(below.LB(), -1))
			assert.Equal(t, 1.0, below.Coefficient(fv))
			assert.Equal(t, -1.0, below.Coefficient(viol))

			above, err := lp.MnecFlowConstraint(tc.cnec, domain.SideLeft, linearproblem.AboveThreshold)
			require.NoError(t, err)
			assert.InDelta(t, tc.lower, above.LB(), 1e-9)
			assert.True(t, math.IsInf(above.UB(), 1))
			assert.Equal(t, 1.0, above.Coefficient(viol))
		})
	}

	_, err := lp.MnecViolationVariable(optimized, domain.SideLeft)
	assert.ErrorIs(t, err, linearproblem.ErrNotCreated)
}

func TestMnecFiller_CostIsSplitAcrossSides(t *testing.T) {
	state := preventiveState(t)
	mnec := newCnec(t, "mnec1", state, -1000, 1000, func(c *domain.Cnec) {
		c.Optimized = false
		c.Monitored = true
		c.Thresholds = append(c.Thresholds, domain.Threshold{Side: domain.SideRight, Unit: domain.Megawatt, Min: -1000, Max: 1000})
	})
	p := newPerimeter(t, state, []*domain.Cnec{mnec}, nil, nil)
	initial := flows(map[string]float64{"mnec1": 10})
	initial.Flows[domain.FlowKey{CnecID: "mnec1", Side: domain.SideRight}] = 12

	lp := fill(t, initial, domain.NewSensitivitySnapshot(),
		NewCoreFiller(zerolog.Nop(), p, domain.NewSetpointSnapshot(), DefaultRangeActionParameters()),
		NewMnecFiller(zerolog.Nop(), p, initial, MnecParameters{ViolationCost: 10}, domain.Ampere),
	)
	viol, err := lp.MnecViolationVariable(mnec, domain.SideRight)
	require.NoError(t, err)
	assert.InDelta(t, 5/(math.Sqrt(3)*400/1000), lp.Objective().Coefficient(viol), 1e-9)
}

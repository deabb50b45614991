package fillers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// nonUniformTaps is a seven-tap table whose steps are not all equal.
var nonUniformTaps = map[int]float64{-3: -5.8, -2: -3.9, -1: -2.0, 0: 0, 1: 2.0, 2: 3.9, 3: 5.8}

// uniformTaps moves two degrees per tap.
var uniformTaps = map[int]float64{-3: -6, -2: -4, -1: -2, 0: 0, 1: 2, 2: 4, 3: 6}

func preventiveState(t *testing.T) *domain.State {
	t.Helper()
	s, err := domain.NewState("", domain.PreventiveInstant)
	require.NoError(t, err)
	return s
}

func curativeState(t *testing.T, contingency string) *domain.State {
	t.Helper()
	s, err := domain.NewState(contingency, domain.CurativeInstant)
	require.NoError(t, err)
	return s
}

func newCnec(t *testing.T, id string, state *domain.State, min, max float64, mutate ...func(*domain.Cnec)) *domain.Cnec {
	t.Helper()
	c := domain.Cnec{
		ID:             id,
		NetworkElement: "ne_" + id,
		Operator:       "opA",
		State:          state,
		Thresholds:     []domain.Threshold{{Side: domain.SideLeft, Unit: domain.Megawatt, Min: min, Max: max}},
		NominalVoltage: [2]float64{400, 400},
		Optimized:      true,
	}
	for _, m := range mutate {
		m(&c)
	}
	out, err := domain.NewCnec(c)
	require.NoError(t, err)
	return out
}

func newPst(t *testing.T, id string, taps map[int]float64, initialTap int, mutate ...func(*domain.RangeAction)) *domain.RangeAction {
	t.Helper()
	ra := domain.RangeAction{
		ID:             id,
		Operator:       "opA",
		NetworkElement: "ne_" + id,
		Kind:           domain.PstAction,
		Taps:           &domain.TapTable{TapToAngle: taps, InitialTap: initialTap},
	}
	for _, m := range mutate {
		m(&ra)
	}
	out, err := domain.NewRangeAction(ra)
	require.NoError(t, err)
	return out
}

func newRangeAction(t *testing.T, id, operator string, kind domain.RangeActionKind, min, max float64) *domain.RangeAction {
	t.Helper()
	out, err := domain.NewRangeAction(domain.RangeAction{
		ID:             id,
		Operator:       operator,
		NetworkElement: "ne_" + id,
		Kind:           kind,
		Ranges:         []domain.Range{{Type: domain.RangeAbsolute, Min: min, Max: max}},
	})
	require.NoError(t, err)
	return out
}

func newPerimeter(t *testing.T, main *domain.State, cnecs, loopFlowCnecs []*domain.Cnec, actions map[*domain.State][]*domain.RangeAction) *domain.Perimeter {
	t.Helper()
	p, err := domain.NewPerimeter(main, cnecs, loopFlowCnecs, actions)
	require.NoError(t, err)
	return p
}

func flows(values map[string]float64) *domain.FlowSnapshot {
	f := domain.NewFlowSnapshot()
	for id, v := range values {
		f.Flows[domain.FlowKey{CnecID: id, Side: domain.SideLeft}] = v
	}
	return f
}

func sensitivities(values map[string]map[string]float64) *domain.SensitivitySnapshot {
	s := domain.NewSensitivitySnapshot()
	for cnec, perAction := range values {
		for ra, v := range perAction {
			s.Values[domain.SensitivityKey{CnecID: cnec, Side: domain.SideLeft, ActionID: ra}] = v
		}
	}
	return s
}

func fill(t *testing.T, flowResult domain.FlowResult, sens domain.SensitivityResult, fillers ...linearproblem.Filler) *linearproblem.LinearProblem {
	t.Helper()
	lp, err := linearproblem.New(zerolog.Nop(), fillers...)
	require.NoError(t, err)
	require.NoError(t, lp.Fill(flowResult, sens))
	return lp
}

// modelState captures every bound and coefficient of lp.
func modelState(lp *linearproblem.LinearProblem) map[string]float64 {
	out := make(map[string]float64)
	for _, v := range lp.Variables() {
		out[v.Name()+"/lb"] = v.LB()
		out[v.Name()+"/ub"] = v.UB()
		out[v.Name()+"/obj"] = lp.Objective().Coefficient(v)
	}
	for _, c := range lp.Constraints() {
		out[c.Name()+"/lb"] = c.LB()
		out[c.Name()+"/ub"] = c.UB()
		for _, v := range lp.Variables() {
			if coef := c.Coefficient(v); coef != 0 {
				out[c.Name()+"/"+v.Name()] = coef
			}
		}
	}
	return out
}

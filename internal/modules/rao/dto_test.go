package rao

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/fillers"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

const requestJSON = `{
  "main_state": {"instant": "preventive"},
  "cnecs": [{
    "id": "cnec1", "network_element": "line1", "operator": "opA",
    "state": {"instant": "preventive"},
    "thresholds": [{"side": "left", "unit": "AMPERE", "max": 1000}],
    "nominal_voltage": [400, 400],
    "optimized": true,
    "loop_flow_threshold": {"value": 50, "unit": "MEGAWATT"}
  }],
  "loop_flow_cnecs": ["cnec1"],
  "range_actions": [{
    "id": "hvdc1", "operator": "opB", "network_element": "hvdc1", "kind": "HVDC",
    "state": {"instant": "preventive"},
    "ranges": [{"type": "ABSOLUTE", "min": -500, "max": 500}],
    "initial_setpoint": 100
  }],
  "initial_flows": [{"cnec_id": "cnec1", "side": "left", "flow": 300, "commercial_flow": 200}],
  "sensitivities": [{"cnec_id": "cnec1", "side": "left", "action_id": "hvdc1", "value": 0.5}],
  "parameters": {
    "objective_unit": "AMPERE",
    "pst_model": "APPROXIMATED_INTEGERS",
    "max_iterations": 3,
    "loop_flow": {"acceptable_increase": 10, "violation_cost": 5, "ptdf_approximation": "FIXED_PTDF"},
    "usage_limits": {"preventive": {"max_range_actions": 1}},
    "cnecs_secured_by_their_pst": {"cnec1": "pst1"}
  }
}`

func TestProblemRequest_ToProblem(t *testing.T) {
	var req ProblemRequest
	require.NoError(t, json.Unmarshal([]byte(requestJSON), &req))

	p, err := req.ToProblem(10)
	require.NoError(t, err)

	assert.Equal(t, "preventive", p.Perimeter.MainState().ID)
	require.Len(t, p.Perimeter.FlowCnecs(), 1)
	require.Len(t, p.Perimeter.LoopFlowCnecs(), 1)
	cnec := p.Perimeter.FlowCnecs()[0]
	assert.Equal(t, []domain.Side{domain.SideLeft}, domain.MonitoredSides(cnec))
	lb, ok := domain.LowerBound(cnec, domain.SideLeft, domain.Megawatt)
	assert.False(t, ok, "missing min is unlimited, got %v", lb)

	hvdc := p.Perimeter.AllRangeActions()[0]
	assert.Equal(t, domain.HvdcAction, hvdc.Kind)
	assert.Equal(t, 100.0, p.PrePerimeterSetpoints.Setpoint(hvdc, p.Perimeter.MainState()))

	assert.Equal(t, 300.0, p.InitialFlows.Flow(cnec, domain.SideLeft, domain.Megawatt))
	assert.Equal(t, 100.0, p.InitialFlows.LoopFlow(cnec, domain.SideLeft, domain.Megawatt))
	assert.Equal(t, 0.5, p.Sensitivities.Sensitivity(cnec, domain.SideLeft, hvdc, domain.Megawatt))

	params := p.Parameters
	assert.Equal(t, domain.Ampere, params.Objective.Unit)
	assert.Equal(t, PstApproximatedIntegers, params.PstModel)
	assert.Equal(t, 3, params.MaxIterations)
	require.NotNil(t, params.LoopFlow)
	assert.Equal(t, 10.0, params.LoopFlow.AcceptableIncrease)
	assert.Nil(t, params.Mnec)
	assert.Equal(t, 1, *params.UsageLimits["preventive"].MaxRangeActions)
	assert.Equal(t, "pst1", params.Unoptimized.CnecsSecuredByTheirPst["cnec1"])
	assert.Equal(t, fillers.DefaultRangeActionParameters().PstPenaltyCost, params.RangeActions.PstPenaltyCost)
}

func TestProblemRequest_DefaultIterations(t *testing.T) {
	p, err := pstRequest(0).ToProblem(7)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Parameters.MaxIterations)

	p, err = pstRequest(0).ToProblem(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultParameters().MaxIterations, p.Parameters.MaxIterations)
}

func TestProblemRequest_JoinsErrors(t *testing.T) {
	req := pstRequest(0)
	req.Cnecs[0].Thresholds[0].Unit = "VOLT"
	req.RangeActions[0].Kind = "SWITCH"
	req.LoopFlowCnecs = []string{"ghost"}
	req.Parameters.PstModel = "ROUNDED"

	_, err := req.ToProblem(5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalid)
	for _, msg := range []string{`unknown unit "VOLT"`, `unknown range action kind "SWITCH"`, "unknown loop-flow cnec ghost", `unknown pst model "ROUNDED"`} {
		assert.Contains(t, err.Error(), msg)
	}
}

func TestProblemRequest_UnknownReferences(t *testing.T) {
	req := pstRequest(0)
	req.InitialFlows = append(req.InitialFlows, FlowDTO{CnecID: "ghost", Side: "left"})
	req.Sensitivities = append(req.Sensitivities, SensitivityDTO{CnecID: "cnec1", Side: "left", ActionID: "ghost_pst"})

	_, err := req.ToProblem(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow for unknown cnec ghost")
	assert.Contains(t, err.Error(), "sensitivity to unknown range action ghost_pst")
}

func TestNewRunResult(t *testing.T) {
	p := pstProblem(t, 150)
	pst := p.Perimeter.AllRangeActions()[0]

	setpoints := domain.NewSetpointSnapshot()
	setpoints.PerState[domain.SetpointKey{ActionID: pst.ID, StateID: "preventive"}] = -2
	flows := domain.NewFlowSnapshot()
	flows.Flows[domain.FlowKey{CnecID: "cnec1", Side: domain.SideLeft}] = 110

	out := NewRunResult(p, &Result{
		Status:       RunOptimized,
		SolverStatus: linearproblem.StatusOptimal,
		Iterations:   2,
		WorstMargin:  -10,
		Setpoints:    setpoints,
		Flows:        flows,
		Duration:     1500 * time.Millisecond,
	})

	assert.Equal(t, "OPTIMIZED", out.Status)
	assert.Equal(t, "OPTIMAL", out.SolverStatus)
	assert.Equal(t, int64(1500), out.DurationMs)
	require.Len(t, out.Setpoints, 1)
	assert.Equal(t, -2.0, out.Setpoints[0].Setpoint)
	require.NotNil(t, out.Setpoints[0].Tap)
	assert.Equal(t, -1, *out.Setpoints[0].Tap)
	require.Len(t, out.Cnecs, 1)
	assert.Equal(t, CnecResultDTO{CnecID: "cnec1", Side: "left", Flow: 110, Margin: -10}, out.Cnecs[0])

	_, err := json.Marshal(out)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(out.WorstMargin))
}

package rao

import (
	"context"
	"math"

	"github.com/aristath/rao/internal/domain"
)

// SensitivityComputer evaluates the network for a set of setpoints. A load
// flow engine plugs in here; the default is LinearSensitivityComputer.
type SensitivityComputer interface {
	Compute(ctx context.Context, p Problem, setpoints domain.SetpointResult) (domain.FlowResult, domain.SensitivityResult, error)
}

// LinearSensitivityComputer extrapolates the initial flows with the initial
// sensitivities. PTDF sums and commercial flows are kept as they were.
type LinearSensitivityComputer struct{}

func (LinearSensitivityComputer) Compute(ctx context.Context, p Problem, setpoints domain.SetpointResult) (domain.FlowResult, domain.SensitivityResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	perimeter := p.Perimeter
	out := domain.NewFlowSnapshot()
	for _, c := range perimeter.FlowCnecs() {
		for _, side := range domain.MonitoredSides(c) {
			key := domain.FlowKey{CnecID: c.ID, Side: side}
			out.PtdfSums[key] = p.InitialFlows.PtdfZonalSum(c, side)
			out.CommercialFlows[key] = p.InitialFlows.CommercialFlow(c, side, domain.Megawatt)

			flow := p.InitialFlows.Flow(c, side, domain.Megawatt)
			if math.IsNaN(flow) {
				continue
			}
			if p.Sensitivities.Status(c.State) == domain.ComputationOK {
				flow += flowShift(perimeter, c, side, p.Sensitivities, p.PrePerimeterSetpoints, setpoints)
			}
			out.Flows[key] = flow
		}
	}
	return out, p.Sensitivities, nil
}

// flowShift sums sensitivity times setpoint change over the actions acting on
// c. Only the last state in which an action is available counts.
func flowShift(perimeter *domain.Perimeter, c *domain.Cnec, side domain.Side, sens domain.SensitivityResult, from, to domain.SetpointResult) float64 {
	shift := 0.0
	seen := make(map[string]bool)
	for _, state := range perimeter.StatesUpTo(c.State) {
		for _, ra := range perimeter.RangeActions(state) {
			if seen[ra.ID] {
				continue
			}
			for _, other := range perimeter.AllRangeActions() {
				if domain.SameAction(ra, other) {
					seen[other.ID] = true
				}
			}
			shift += sens.Sensitivity(c, side, ra, domain.Megawatt) * (to.Setpoint(ra, state) - from.Setpoint(ra, state))
		}
	}
	return shift
}

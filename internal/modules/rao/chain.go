package rao

import (
	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/fillers"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// chain is the ordered filler list of one problem. unoptimized is kept aside
// because the optimizer reads the cnecs it took out of the objective.
type chain struct {
	fillers     []linearproblem.Filler
	unoptimized *fillers.UnoptimizedCnecFiller
}

// buildChain assembles the fillers in the order they depend on each other:
// the core filler creates flow and setpoint variables, the objective filler
// creates the margin constraints the unoptimized filler relaxes.
func buildChain(log zerolog.Logger, p Problem) chain {
	params := p.Parameters
	perimeter := p.Perimeter

	c := chain{}
	core := fillers.NewCoreFiller(log, perimeter, p.PrePerimeterSetpoints, params.RangeActions)

	if params.PstModel == PstApproximatedIntegers {
		c.fillers = append(c.fillers,
			core.WithDiscretePsts(),
			fillers.NewDiscreteTapFiller(log, perimeter, p.PrePerimeterSetpoints),
			fillers.NewDiscreteGroupFiller(log, perimeter, p.PrePerimeterSetpoints),
			fillers.NewContinuousGroupFiller(log, perimeter).WithoutPsts(),
		)
	} else {
		c.fillers = append(c.fillers, core, fillers.NewContinuousGroupFiller(log, perimeter))
	}

	if params.Objective.Relative {
		c.fillers = append(c.fillers, fillers.NewMaxMinRelativeMarginFiller(log, perimeter, params.Objective.Unit, params.RelativeMargin))
	} else {
		c.fillers = append(c.fillers, fillers.NewMaxMinMarginFiller(log, perimeter, params.Objective.Unit))
	}

	if params.Mnec != nil {
		c.fillers = append(c.fillers, fillers.NewMnecFiller(log, perimeter, p.InitialFlows, *params.Mnec, params.Objective.Unit))
	}
	if params.LoopFlow != nil && len(perimeter.LoopFlowCnecs()) > 0 {
		c.fillers = append(c.fillers, fillers.NewLoopFlowFiller(log, perimeter, p.InitialFlows, *params.LoopFlow))
	}
	if params.hasUsageLimits() {
		c.fillers = append(c.fillers, fillers.NewUsageLimitsFiller(log, perimeter, p.PrePerimeterSetpoints, params.UsageLimits))
	}
	if params.hasUnoptimizedCnecs() {
		c.unoptimized = fillers.NewUnoptimizedCnecFiller(log, perimeter, p.InitialFlows, params.Unoptimized, params.RangeActions)
		c.fillers = append(c.fillers, c.unoptimized)
	}
	return c
}

// scope returns the worst-margin filter for one set of results: sides the
// unoptimized filler lets out of the objective do not count.
func (c chain) scope(lp *linearproblem.LinearProblem, flows domain.FlowResult, sens domain.SensitivityResult, setpoints domain.SetpointResult) func(*domain.Cnec, domain.Side) bool {
	return func(cnec *domain.Cnec, side domain.Side) bool {
		return c.unoptimized == nil || !c.unoptimized.Unoptimized(lp, cnec, side, flows, sens, setpoints)
	}
}

// excluded returns the ids of the cnecs that may leave the objective.
func (c chain) excluded() map[string]bool {
	out := make(map[string]bool)
	if c.unoptimized == nil {
		return out
	}
	for _, id := range c.unoptimized.ExcludedCnecs() {
		out[id] = true
	}
	return out
}

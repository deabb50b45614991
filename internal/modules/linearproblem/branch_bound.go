package linearproblem

import (
	"context"
	"math"
	"time"
)

const (
	integralityTol = 1e-6
	// solverGracePeriod is how long Solve waits for the worker to hand back its
	// incumbent after the deadline has passed.
	solverGracePeriod = 50 * time.Millisecond
)

type outcome struct {
	status Status
	x      []float64
	obj    float64
	nodes  int
}

type node struct {
	lb, ub []float64
}

// branchAndBound explores the integer variables of p depth first, branching on
// the most fractional value. Without integer variables it is a single LP solve.
func branchAndBound(ctx context.Context, p *problem, o solveOptions) outcome {
	if !p.hasIntegers() {
		r := solveLP(p, p.lb, p.ub, o.tolerance)
		return outcome{status: r.status, x: r.x, obj: r.obj, nodes: 1}
	}

	var (
		best        []float64
		bestObj     = math.Inf(1)
		explored    int
		interrupted Status
		stack       = []node{{lb: p.lb, ub: p.ub}}
	)
	for len(stack) > 0 {
		if ctx.Err() != nil {
			interrupted = StatusTimedOut
			break
		}
		if o.maxNodes > 0 && explored >= o.maxNodes {
			interrupted = StatusNotSolved
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		explored++

		r := solveLP(p, nd.lb, nd.ub, o.tolerance)
		if r.status == StatusUnbounded && explored == 1 {
			return outcome{status: StatusUnbounded, nodes: explored}
		}
		if r.status != StatusOptimal {
			continue
		}
		if best != nil && r.obj >= bestObj-o.relativeGap*math.Abs(bestObj)-1e-9 {
			continue
		}
		j := p.mostFractional(r.x)
		if j < 0 {
			best = p.roundIntegers(r.x)
			bestObj = p.objective(best)
			continue
		}

		v := r.x[j]
		down := node{lb: nd.lb, ub: cloneWith(nd.ub, j, math.Floor(v))}
		up := node{lb: cloneWith(nd.lb, j, math.Ceil(v)), ub: nd.ub}
		// The child closer to the relaxed value is popped first.
		if v-math.Floor(v) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	switch {
	case best == nil && interrupted != StatusNotSolved:
		return outcome{status: interrupted, nodes: explored}
	case best == nil && len(stack) > 0:
		return outcome{status: StatusNotSolved, nodes: explored}
	case best == nil:
		return outcome{status: StatusInfeasible, nodes: explored}
	case len(stack) > 0:
		return outcome{status: StatusFeasible, x: best, obj: bestObj, nodes: explored}
	default:
		return outcome{status: StatusOptimal, x: best, obj: bestObj, nodes: explored}
	}
}

func (p *problem) hasIntegers() bool {
	for _, in := range p.integer {
		if in {
			return true
		}
	}
	return false
}

// mostFractional returns the integer variable furthest from an integer value,
// or -1 when x is integral.
func (p *problem) mostFractional(x []float64) int {
	best, bestFrac := -1, integralityTol
	for j, in := range p.integer {
		if !in {
			continue
		}
		frac := math.Abs(x[j] - math.Round(x[j]))
		if frac > bestFrac {
			best, bestFrac = j, frac
		}
	}
	return best
}

func (p *problem) roundIntegers(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	for j, in := range p.integer {
		if in {
			out[j] = math.Round(out[j])
		}
	}
	return out
}

func cloneWith(src []float64, j int, v float64) []float64 {
	out := make([]float64, len(src))
	copy(out, src)
	out[j] = v
	return out
}

// Solve optimises the model and, when a solution is found, stores the values
// into the variables and the objective. The solver runs on its own goroutine
// against a snapshot of the model; the time limit and ctx both bound it.
func (m *Model) Solve(ctx context.Context, opts ...SolveOption) Status {
	o := defaultSolveOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeLimit)
		defer cancel()
	}

	p := m.snapshot()
	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{status: StatusAbnormal}
			}
		}()
		done <- branchAndBound(ctx, p, o)
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		select {
		case out = <-done:
		case <-time.After(solverGracePeriod):
			out = outcome{status: StatusTimedOut}
		}
	}

	m.log.Debug().
		Str("status", out.status.String()).
		Int("variables", len(p.cost)).
		Int("constraints", len(p.rows)).
		Int("nodes", out.nodes).
		Dur("duration", time.Since(start)).
		Msg("Solve finished")

	if !out.status.HasSolution() {
		return out.status
	}
	for i, v := range m.variables {
		v.solution = out.x[i]
	}
	if m.objective.maximize {
		m.objective.value = -out.obj
	} else {
		m.objective.value = out.obj
	}
	return out.status
}

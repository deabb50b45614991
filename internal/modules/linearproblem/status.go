package linearproblem

import (
	"time"
)

// Status is the terminal state of a solve.
type Status int

const (
	StatusNotSolved Status = iota
	StatusOptimal
	StatusFeasible
	StatusInfeasible
	StatusUnbounded
	StatusAbnormal
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusUnbounded:
		return "UNBOUNDED"
	case StatusAbnormal:
		return "ABNORMAL"
	case StatusTimedOut:
		return "TIMED_OUT"
	default:
		return "NOT_SOLVED"
	}
}

// HasSolution reports whether variable solution values are meaningful.
func (s Status) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

type solveOptions struct {
	timeLimit   time.Duration
	relativeGap float64
	maxNodes    int
	tolerance   float64
}

func defaultSolveOptions() solveOptions {
	return solveOptions{
		relativeGap: 1e-4,
		maxNodes:    10000,
		tolerance:   1e-9,
	}
}

// SolveOption tunes a solve.
type SolveOption func(*solveOptions)

// WithTimeLimit bounds the wall time of a solve. Zero means no limit.
func WithTimeLimit(d time.Duration) SolveOption {
	return func(o *solveOptions) { o.timeLimit = d }
}

// WithRelativeGap stops branch-and-bound once the incumbent is proven within gap of the optimum.
func WithRelativeGap(gap float64) SolveOption {
	return func(o *solveOptions) { o.relativeGap = gap }
}

// WithMaxNodes bounds the number of branch-and-bound nodes.
func WithMaxNodes(n int) SolveOption {
	return func(o *solveOptions) { o.maxNodes = n }
}

// WithTolerance sets the simplex optimality tolerance.
func WithTolerance(tol float64) SolveOption {
	return func(o *solveOptions) { o.tolerance = tol }
}

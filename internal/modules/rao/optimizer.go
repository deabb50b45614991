package rao

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
	"github.com/aristath/rao/internal/utils"
)

// setpointTolerance is the smallest setpoint change counted as a move.
const setpointTolerance = 1e-6

// slowSolve is the solve duration above which a warning is logged.
const slowSolve = 30 * time.Second

// RunStatus summarises an optimisation.
type RunStatus string

const (
	// RunOptimized means at least one iteration improved the worst margin.
	RunOptimized RunStatus = "OPTIMIZED"
	// RunUnchanged means the pre-perimeter setpoints were kept.
	RunUnchanged RunStatus = "UNCHANGED"
	// RunFailed means the solver never returned a solution.
	RunFailed RunStatus = "FAILED"
)

// IterationObserver is told about every solved iteration.
type IterationObserver func(iteration int, status linearproblem.Status, worstMargin float64)

// Problem is one perimeter to optimise together with its initial results.
type Problem struct {
	Perimeter             *domain.Perimeter
	InitialFlows          domain.FlowResult
	Sensitivities         domain.SensitivityResult
	PrePerimeterSetpoints domain.SetpointResult
	Parameters            Parameters
	OnIteration           IterationObserver
}

func (p Problem) validate() error {
	var errs []error
	if p.Perimeter == nil {
		errs = append(errs, errors.New("problem has no perimeter"))
	}
	if p.InitialFlows == nil {
		errs = append(errs, errors.New("problem has no initial flows"))
	}
	if p.Sensitivities == nil {
		errs = append(errs, errors.New("problem has no sensitivities"))
	}
	if p.PrePerimeterSetpoints == nil {
		errs = append(errs, errors.New("problem has no pre-perimeter setpoints"))
	}
	if err := p.Parameters.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Result is the best situation reached by an optimisation.
type Result struct {
	Status        RunStatus
	SolverStatus  linearproblem.Status
	Iterations    int
	WorstMargin   float64
	Setpoints     *domain.SetpointSnapshot
	Flows         domain.FlowResult
	ExcludedCnecs []string
	Duration      time.Duration
}

// Optimizer iterates solve and refresh over a filler chain.
type Optimizer struct {
	computer  SensitivityComputer
	solveOpts []linearproblem.SolveOption
	log       zerolog.Logger
}

// NewOptimizer creates an optimizer. A nil computer falls back to the linear
// extrapolation of the initial results.
func NewOptimizer(log zerolog.Logger, computer SensitivityComputer, opts ...linearproblem.SolveOption) *Optimizer {
	if computer == nil {
		computer = LinearSensitivityComputer{}
	}
	return &Optimizer{
		computer:  computer,
		solveOpts: opts,
		log:       log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize fills the model once then alternates solve and update until the
// setpoints settle, the worst margin degrades or MaxIterations is reached.
func (o *Optimizer) Optimize(ctx context.Context, p Problem) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}
	start := time.Now()
	log := o.log.With().Str("main_state", p.Perimeter.MainState().ID).Logger()

	c := buildChain(o.log, p)
	lp, err := linearproblem.New(o.log, c.fillers...)
	if err != nil {
		return nil, err
	}
	if err := lp.Fill(p.InitialFlows, p.Sensitivities); err != nil {
		return nil, err
	}
	initial := initialSetpoints(p)
	best := &Result{
		Status:        RunUnchanged,
		SolverStatus:  linearproblem.StatusNotSolved,
		WorstMargin:   worstMargin(p, p.InitialFlows, c.scope(lp, p.InitialFlows, p.Sensitivities, initial)),
		Setpoints:     initial,
		Flows:         p.InitialFlows,
		ExcludedCnecs: sortedIDs(c.excluded()),
	}
	log.Info().
		Int("fillers", len(c.fillers)).
		Float64("initial_worst_margin", best.WorstMargin).
		Msg("Starting optimisation")

	previous := best.Setpoints
	for iteration := 1; iteration <= p.Parameters.MaxIterations; iteration++ {
		solved := utils.SolveTimer(iteration, slowSolve, log)
		status := lp.Solve(ctx, o.solveOpts...)
		solved(status)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimisation interrupted at iteration %d: %w", iteration, err)
		}
		if !status.HasSolution() {
			log.Warn().Int("iteration", iteration).Str("solver_status", status.String()).Msg("Solver returned no solution")
			if iteration == 1 {
				best.Status = RunFailed
				best.SolverStatus = status
			}
			break
		}

		setpoints, err := readSetpoints(lp, p)
		if err != nil {
			return nil, err
		}
		if !setpointsChanged(p.Perimeter, previous, setpoints) {
			best.SolverStatus = status
			log.Debug().Int("iteration", iteration).Msg("Setpoints unchanged")
			break
		}

		flows, sens, err := o.computer.Compute(ctx, p, setpoints)
		if err != nil {
			return nil, fmt.Errorf("failed to compute flows at iteration %d: %w", iteration, err)
		}
		margin := worstMargin(p, flows, c.scope(lp, flows, sens, setpoints))
		if p.OnIteration != nil {
			p.OnIteration(iteration, status, margin)
		}
		log.Info().
			Int("iteration", iteration).
			Str("solver_status", status.String()).
			Float64("worst_margin", margin).
			Msg("Iteration solved")

		if margin < best.WorstMargin {
			log.Debug().Int("iteration", iteration).Msg("Worst margin degraded, keeping previous iteration")
			break
		}
		best.Status = RunOptimized
		best.SolverStatus = status
		best.Iterations = iteration
		best.WorstMargin = margin
		best.Setpoints = setpoints
		best.Flows = flows
		previous = setpoints

		if iteration == p.Parameters.MaxIterations {
			break
		}
		if err := lp.Update(flows, sens, setpoints); err != nil {
			return nil, err
		}
	}

	best.Duration = time.Since(start)
	log.Info().
		Str("status", string(best.Status)).
		Str("solver_status", best.SolverStatus.String()).
		Int("iterations", best.Iterations).
		Float64("worst_margin", best.WorstMargin).
		Dur("duration", best.Duration).
		Msg("Optimisation finished")
	return best, nil
}

// BatchItem is the outcome of one problem of a batch.
type BatchItem struct {
	Result *Result
	Err    error
}

// OptimizeBatch optimises independent problems with at most limit of them in
// flight. A failing problem does not stop the others; only a cancelled
// context aborts the batch.
func (o *Optimizer) OptimizeBatch(ctx context.Context, problems []Problem, limit int) ([]BatchItem, error) {
	items := make([]BatchItem, len(problems))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range problems {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := o.Optimize(gctx, problems[i])
			items[i] = BatchItem{Result: res, Err: err}
			if err != nil && gctx.Err() == nil {
				o.log.Warn().Err(err).Int("index", i).Msg("Batch problem failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}
	return items, ctx.Err()
}

// initialSetpoints copies the pre-perimeter setpoints of every action.
func initialSetpoints(p Problem) *domain.SetpointSnapshot {
	out := domain.NewSetpointSnapshot()
	for _, state := range p.Perimeter.States() {
		for _, ra := range p.Perimeter.RangeActions(state) {
			out.PerState[domain.SetpointKey{ActionID: ra.ID, StateID: state.ID}] = p.PrePerimeterSetpoints.Setpoint(ra, state)
		}
	}
	return out
}

// readSetpoints collects the solved setpoints. PST angles are rounded to the
// nearest tap.
func readSetpoints(lp *linearproblem.LinearProblem, p Problem) (*domain.SetpointSnapshot, error) {
	out := domain.NewSetpointSnapshot()
	for _, state := range p.Perimeter.States() {
		for _, ra := range p.Perimeter.RangeActions(state) {
			v, err := lp.SetpointVariable(ra, state)
			if err != nil {
				return nil, err
			}
			value := v.SolutionValue()
			if ra.Kind == domain.PstAction {
				value, err = domain.TapToAngle(ra, domain.AngleToTap(ra, value))
				if err != nil {
					return nil, err
				}
			}
			out.PerState[domain.SetpointKey{ActionID: ra.ID, StateID: state.ID}] = value
		}
	}
	return out, nil
}

func setpointsChanged(perimeter *domain.Perimeter, before, after domain.SetpointResult) bool {
	for _, state := range perimeter.States() {
		for _, ra := range perimeter.RangeActions(state) {
			if math.Abs(after.Setpoint(ra, state)-before.Setpoint(ra, state)) > setpointTolerance {
				return true
			}
		}
	}
	return false
}

// worstMargin is the smallest margin over the optimised cnec sides accepted
// by counts, in the objective unit. A nil counts accepts every side. With a
// relative objective positive margins are divided by the PTDF sum. Sides
// without a flow are ignored; without any side it is zero.
func worstMargin(p Problem, flows domain.FlowResult, counts func(*domain.Cnec, domain.Side) bool) float64 {
	obj := p.Parameters.Objective
	lowerBound := p.Parameters.RelativeMargin.PtdfSumLowerBound
	if lowerBound <= 0 {
		lowerBound = 0.01
	}
	worst := math.Inf(1)
	for _, c := range p.Perimeter.FlowCnecs() {
		if !c.Optimized {
			continue
		}
		for _, side := range domain.MonitoredSides(c) {
			if counts != nil && !counts(c, side) {
				continue
			}
			margin := flows.Margin(c, side, obj.Unit)
			if math.IsNaN(margin) || math.IsInf(margin, 0) {
				continue
			}
			if obj.Relative && margin > 0 {
				margin /= math.Max(flows.PtdfZonalSum(c, side), lowerBound)
			}
			worst = math.Min(worst, margin)
		}
	}
	if math.IsInf(worst, 1) {
		return 0
	}
	return worst
}

func sortedIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

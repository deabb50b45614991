package rao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/events"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

const eventModule = "rao"

// ErrInvalidRequest wraps every problem that cannot be turned into a model.
var ErrInvalidRequest = errors.New("invalid run request")

// Archiver stores a finished run outside the database and returns its key.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) (string, error)
}

// ServiceConfig holds process-wide run settings.
type ServiceConfig struct {
	MaxIterations   int
	MaxParallelRuns int
}

// Service runs optimisations, stores them and publishes their lifecycle.
type Service struct {
	optimizer *Optimizer
	repo      *Repository
	events    *events.Manager
	archiver  Archiver
	cfg       ServiceConfig
	log       zerolog.Logger
}

// NewService creates the run service. archiver may be nil.
func NewService(optimizer *Optimizer, repo *Repository, eventManager *events.Manager, archiver Archiver, cfg ServiceConfig, log zerolog.Logger) *Service {
	return &Service{
		optimizer: optimizer,
		repo:      repo,
		events:    eventManager,
		archiver:  archiver,
		cfg:       cfg,
		log:       log.With().Str("service", "rao").Logger(),
	}
}

// Run optimises one problem synchronously and returns the stored run. A
// failing optimisation is recorded on the run, not returned as an error.
func (s *Service) Run(ctx context.Context, req *ProblemRequest) (*Run, error) {
	problem, err := req.ToProblem(s.cfg.MaxIterations)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	id, err := s.start(ctx, "", req, problem)
	if err != nil {
		return nil, err
	}
	problem.OnIteration = s.iterationObserver(id)
	res, optErr := s.optimizer.Optimize(ctx, problem)
	// A cancelled request still records its outcome.
	ctx = context.WithoutCancel(ctx)
	if err := s.finish(ctx, id, problem, res, optErr); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// RunBatch optimises independent problems in parallel. Every request is
// validated before any run is created.
func (s *Service) RunBatch(ctx context.Context, reqs []ProblemRequest) (string, []*Run, error) {
	if len(reqs) == 0 {
		return "", nil, fmt.Errorf("%w: empty batch", ErrInvalidRequest)
	}
	problems := make([]Problem, len(reqs))
	var errs []error
	for i := range reqs {
		p, err := reqs[i].ToProblem(s.cfg.MaxIterations)
		if err != nil {
			errs = append(errs, fmt.Errorf("problem %d: %w", i, err))
			continue
		}
		problems[i] = p
	}
	if err := errors.Join(errs...); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	batchID := uuid.New().String()
	ids := make([]string, len(reqs))
	for i := range reqs {
		id, err := s.start(ctx, batchID, &reqs[i], problems[i])
		if err != nil {
			return batchID, nil, err
		}
		ids[i] = id
		problems[i].OnIteration = s.iterationObserver(id)
	}

	items, batchErr := s.optimizer.OptimizeBatch(ctx, problems, s.cfg.MaxParallelRuns)
	ctx = context.WithoutCancel(ctx)
	failed := 0
	runs := make([]*Run, 0, len(items))
	for i, item := range items {
		optErr := item.Err
		if item.Result == nil && optErr == nil {
			optErr = batchErr
		}
		if optErr != nil {
			failed++
		}
		if err := s.finish(ctx, ids[i], problems[i], item.Result, optErr); err != nil {
			return batchID, nil, err
		}
		run, err := s.repo.Get(ctx, ids[i])
		if err != nil {
			return batchID, nil, err
		}
		runs = append(runs, run)
	}

	s.events.EmitTyped(eventModule, &events.BatchCompletedData{BatchID: batchID, RunIDs: ids, Failed: failed})
	s.log.Info().Str("batch_id", batchID).Int("runs", len(ids)).Int("failed", failed).Msg("Batch finished")
	return batchID, runs, nil
}

// start stores the run and announces it.
func (s *Service) start(ctx context.Context, batchID string, req *ProblemRequest, problem Problem) (string, error) {
	mainState := problem.Perimeter.MainState().ID
	id, err := s.repo.Create(ctx, batchID, mainState, req)
	if err != nil {
		return "", err
	}
	s.events.EmitTyped(eventModule, &events.RunStartedData{
		RunID:        id,
		BatchID:      batchID,
		MainState:    mainState,
		Cnecs:        len(problem.Perimeter.FlowCnecs()),
		RangeActions: len(problem.Perimeter.AllRangeActions()),
	})
	return id, nil
}

func (s *Service) finish(ctx context.Context, id string, problem Problem, res *Result, optErr error) error {
	var result *RunResult
	if optErr == nil && res != nil {
		result = NewRunResult(problem, res)
	}
	if err := s.repo.Finish(ctx, id, result, optErr); err != nil {
		return err
	}

	if optErr != nil {
		s.log.Error().Err(optErr).Str("run_id", id).Msg("Run failed")
		s.events.EmitTyped(eventModule, &events.RunFailedData{RunID: id, Error: optErr.Error()})
	} else {
		s.events.EmitTyped(eventModule, &events.RunCompletedData{
			RunID:        id,
			Status:       result.Status,
			SolverStatus: result.SolverStatus,
			Iterations:   result.Iterations,
			WorstMargin:  result.WorstMargin,
			DurationMs:   result.DurationMs,
		})
	}
	s.archive(ctx, id)
	return nil
}

// archive uploads the stored run. Failures are reported, never fatal.
func (s *Service) archive(ctx context.Context, id string) {
	if s.archiver == nil {
		return
	}
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", id).Msg("Failed to load run for archiving")
		return
	}
	body, err := encodeBlob(run)
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", id).Msg("Failed to encode run for archiving")
		return
	}
	key := fmt.Sprintf("%s/%s.msgpack", run.CreatedAt.Format("2006/01/02"), id)
	stored, err := s.archiver.Archive(ctx, key, body)
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", id).Msg("Failed to archive run")
		s.events.EmitError(eventModule, err, map[string]interface{}{"run_id": id, "operation": "archive"})
		return
	}
	if err := s.repo.SetArchiveKey(ctx, id, stored); err != nil {
		s.log.Warn().Err(err).Str("run_id", id).Msg("Failed to record archive key")
		return
	}
	s.events.EmitTyped(eventModule, &events.RunArchivedData{RunID: id, Key: stored})
}

// Get returns a stored run.
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	return s.repo.Get(ctx, id)
}

// List returns run summaries, newest first.
func (s *Service) List(ctx context.Context, batchID string, limit, offset int) ([]Run, error) {
	return s.repo.List(ctx, batchID, limit, offset)
}

// Delete removes a stored run.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// PurgeOlderThan deletes finished runs created before the cutoff.
func (s *Service) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, before)
	if err != nil {
		return 0, err
	}
	s.events.EmitTyped(eventModule, &events.RunsPurgedData{Deleted: n, Before: before})
	return n, nil
}

// iterationObserver publishes iteration events for one run.
func (s *Service) iterationObserver(id string) IterationObserver {
	return func(iteration int, status linearproblem.Status, worstMargin float64) {
		s.events.EmitTyped(eventModule, &events.RunIterationData{
			RunID:        id,
			Iteration:    iteration,
			SolverStatus: status.String(),
			WorstMargin:  worstMargin,
		})
	}
}

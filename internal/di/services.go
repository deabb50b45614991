package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/config"
	"github.com/aristath/rao/internal/events"
	"github.com/aristath/rao/internal/modules/linearproblem"
	"github.com/aristath/rao/internal/modules/rao"
	"github.com/aristath/rao/internal/reliability"
)

// InitializeServices creates the event bus, the optimiser and the run service
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.RunsDB == nil {
		return fmt.Errorf("container has no runs database")
	}

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	if cfg.Archive.Enabled {
		archiver, err := reliability.NewS3Archiver(ctx, reliability.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Prefix:          cfg.Archive.Prefix,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		container.Archiver = archiver
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Run archive enabled")
	}

	container.Optimizer = rao.NewOptimizer(log, nil,
		linearproblem.WithTimeLimit(cfg.Solver.TimeLimit),
		linearproblem.WithRelativeGap(cfg.Solver.RelativeGap),
		linearproblem.WithMaxNodes(cfg.Solver.MaxNodes),
	)
	container.RunRepo = rao.NewRepository(container.RunsDB.Conn(), log)
	container.RunService = rao.NewService(
		container.Optimizer,
		container.RunRepo,
		container.EventManager,
		container.Archiver,
		rao.ServiceConfig{
			MaxIterations:   cfg.Runs.MaxIterations,
			MaxParallelRuns: cfg.Runs.MaxParallelRuns,
		},
		log,
	)
	return nil
}

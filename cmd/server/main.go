// Package main is the entry point for the remedial-action optimisation service.
// It serves synchronous optimisation runs over HTTP, stores them in SQLite,
// streams run events over a websocket and runs housekeeping jobs on a schedule.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/rao/internal/config"
	"github.com/aristath/rao/internal/di"
	"github.com/aristath/rao/internal/server"
	"github.com/aristath/rao/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting remedial-action optimiser")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:        log,
		RunsDB:     container.RunsDB,
		Config:     cfg,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		EventBus:   container.EventBus,
		RunService: container.RunService,
		Scheduler:  container.Scheduler,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	// In-flight runs get the solver time limit to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Solver.TimeLimit+10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stops the scheduler, waiting for running jobs, then closes the database
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close runs database")
	}

	log.Info().Msg("Server stopped")
}

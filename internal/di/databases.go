package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/config"
	"github.com/aristath/rao/internal/database"
)

// InitializeDatabases opens the run database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	runsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "runs.db"),
		Profile: database.ProfileStandard,
		Name:    "runs",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runs database: %w", err)
	}

	if err := runsDB.Migrate(); err != nil {
		runsDB.Close()
		return nil, fmt.Errorf("failed to migrate runs database: %w", err)
	}
	container.RunsDB = runsDB

	log.Info().Str("path", runsDB.Path()).Msg("Runs database initialized")
	return container, nil
}

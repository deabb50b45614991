// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the run database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool
	Solver   SolverConfig
	Runs     RunsConfig
	Archive  ArchiveConfig
}

// SolverConfig bounds every solve of the process
type SolverConfig struct {
	TimeLimit   time.Duration
	RelativeGap float64
	MaxNodes    int
}

// RunsConfig tunes the optimisation service and its housekeeping
type RunsConfig struct {
	MaxIterations   int
	MaxParallelRuns int
	RetentionDays   int
	CleanupSchedule string // cron spec with seconds
}

// ArchiveConfig configures the S3-compatible archive of finished runs
type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string // empty for AWS, set for R2/MinIO
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RAO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("RAO_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Solver: SolverConfig{
			TimeLimit:   time.Duration(getEnvAsInt("RAO_SOLVER_TIME_LIMIT", 60)) * time.Second,
			RelativeGap: getEnvAsFloat("RAO_SOLVER_RELATIVE_GAP", 1e-4),
			MaxNodes:    getEnvAsInt("RAO_SOLVER_MAX_NODES", 10000),
		},
		Runs: RunsConfig{
			MaxIterations:   getEnvAsInt("RAO_MAX_ITERATIONS", 10),
			MaxParallelRuns: getEnvAsInt("RAO_MAX_PARALLEL_RUNS", 2),
			RetentionDays:   getEnvAsInt("RAO_RUN_RETENTION_DAYS", 30),
			CleanupSchedule: getEnv("RAO_CLEANUP_SCHEDULE", "0 0 3 * * *"),
		},
		Archive: ArchiveConfig{
			Enabled:         getEnvAsBool("RAO_ARCHIVE_ENABLED", false),
			Bucket:          getEnv("RAO_ARCHIVE_BUCKET", ""),
			Region:          getEnv("RAO_ARCHIVE_REGION", "auto"),
			Endpoint:        getEnv("RAO_ARCHIVE_ENDPOINT", ""),
			AccessKeyID:     getEnv("RAO_ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("RAO_ARCHIVE_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("RAO_ARCHIVE_PREFIX", "runs/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Solver.TimeLimit < 0 {
		errs = append(errs, fmt.Errorf("solver time limit %s is negative", c.Solver.TimeLimit))
	}
	if c.Solver.RelativeGap < 0 {
		errs = append(errs, fmt.Errorf("solver relative gap %g is negative", c.Solver.RelativeGap))
	}
	if c.Solver.MaxNodes <= 0 {
		errs = append(errs, fmt.Errorf("solver max nodes %d must be positive", c.Solver.MaxNodes))
	}
	if c.Runs.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max iterations %d must be positive", c.Runs.MaxIterations))
	}
	if c.Runs.MaxParallelRuns <= 0 {
		errs = append(errs, fmt.Errorf("max parallel runs %d must be positive", c.Runs.MaxParallelRuns))
	}
	if c.Runs.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("run retention %d days is negative", c.Runs.RetentionDays))
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Runs.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cleanup schedule %q: %w", c.Runs.CleanupSchedule, err))
	}
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("archive enabled without a bucket"))
		}
		if (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
			errs = append(errs, errors.New("archive credentials need both an access key id and a secret"))
		}
	}
	return errors.Join(errs...)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

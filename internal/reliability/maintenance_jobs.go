package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/rao/internal/database"
)

// Free-space thresholds in GB
const (
	criticalFreeGB = 0.5
	lowFreeGB      = 5.0
)

// DailyMaintenanceJob checks database integrity and free disk space
type DailyMaintenanceJob struct {
	db      *database.DB
	dataDir string
	log     zerolog.Logger
	usage   func(path string) (*disk.UsageStat, error)
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("job", "daily_maintenance").Logger(),
		usage:   disk.Usage,
	}
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Run database failed its health check")
		return err
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.logDatabaseSize()

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")
	return nil
}

// checkDiskSpace verifies sufficient disk space is available
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	stat, err := j.usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	switch {
	case availableGB < criticalFreeGB:
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	case availableGB < lowFreeGB:
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Low disk space - consider lowering run retention")
	}
	return nil
}

func (j *DailyMaintenanceJob) logDatabaseSize() {
	stats, err := j.db.GetStats()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to get database stats")
		return
	}

	j.log.Info().
		Str("database", j.db.Name()).
		Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
		Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
		Int64("freelist", stats.FreelistCount).
		Msg("Database metrics")
}

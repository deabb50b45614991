package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/config"
	"github.com/aristath/rao/internal/reliability"
	"github.com/aristath/rao/internal/scheduler"
)

// Fixed housekeeping schedules (cron with seconds)
const (
	walCheckpointSchedule    = "0 */15 * * * *"
	dailyMaintenanceSchedule = "0 30 2 * * *"
)

// RegisterJobs creates the housekeeping jobs and registers them with a new scheduler.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	instances := &JobInstances{
		RunRetention:     scheduler.NewRunRetentionJob(container.RunService, cfg.Runs.RetentionDays, log),
		WALCheckpoints:   scheduler.NewCheckWALCheckpointsJob(container.RunsDB, log),
		DailyMaintenance: reliability.NewDailyMaintenanceJob(container.RunsDB, cfg.DataDir, log),
	}

	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.Runs.CleanupSchedule, instances.RunRetention},
		{walCheckpointSchedule, instances.WALCheckpoints},
		{dailyMaintenanceSchedule, instances.DailyMaintenance},
	}
	for _, s := range schedules {
		if err := sched.AddJob(s.spec, s.job); err != nil {
			return nil, err
		}
	}

	container.Scheduler = sched
	return instances, nil
}

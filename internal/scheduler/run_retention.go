package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunPurger deletes finished runs created before a cutoff
type RunPurger interface {
	PurgeOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// RunRetentionJob deletes finished runs older than the retention window
type RunRetentionJob struct {
	log       zerolog.Logger
	purger    RunPurger
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// NewRunRetentionJob creates a retention job. A zero retention keeps runs forever.
func NewRunRetentionJob(purger RunPurger, retentionDays int, log zerolog.Logger) *RunRetentionJob {
	return &RunRetentionJob{
		log:       log.With().Str("job", "run_retention").Logger(),
		purger:    purger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		timeout:   5 * time.Minute,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *RunRetentionJob) Name() string {
	return "run_retention"
}

// Run executes the retention cleanup
func (j *RunRetentionJob) Run() error {
	if j.retention <= 0 {
		j.log.Debug().Msg("Run retention disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	deleted, err := j.purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	j.log.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Old runs purged")
	return nil
}

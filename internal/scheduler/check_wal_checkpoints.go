package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/database"
)

// walFramesWarning is the WAL size above which a truncating checkpoint is forced
const walFramesWarning = 1000

// vacuumPages bounds the free pages returned per run
const vacuumPages = 1000

// CheckWALCheckpointsJob keeps the run database's WAL and free list small
type CheckWALCheckpointsJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob
func NewCheckWALCheckpointsJob(db *database.DB, log zerolog.Logger) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		log: log.With().Str("job", "check_wal_checkpoints").Logger(),
		db:  db,
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the check WAL checkpoints job
func (j *CheckWALCheckpointsJob) Run() error {
	if j.db == nil {
		return nil
	}

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	if err := j.db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed); err != nil {
		return fmt.Errorf("failed to check WAL checkpoint for %s: %w", j.db.Name(), err)
	}

	if frames > walFramesWarning {
		j.log.Warn().
			Str("database", j.db.Name()).
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, truncating")
		if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
			return err
		}
	} else {
		j.log.Debug().
			Str("database", j.db.Name()).
			Int("wal_frames", frames).
			Msg("WAL checkpoint status OK")
	}

	stats, err := j.db.GetStats()
	if err != nil {
		return err
	}
	if stats.FreelistCount > 0 {
		if err := j.db.IncrementalVacuum(vacuumPages); err != nil {
			return err
		}
		j.log.Debug().
			Str("database", j.db.Name()).
			Int64("freelist", stats.FreelistCount).
			Msg("Incremental vacuum done")
	}
	return nil
}

// Package utils holds small helpers shared by several packages.
package utils

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// slowPurge is the run purge duration above which a warning is logged.
const slowPurge = 5 * time.Second

// SolveTimer starts timing the solver call of one optimisation iteration.
// The returned func logs the solve with the status it ended in, at warn level
// when it took longer than slow. A zero slow never warns.
//
// Usage:
//
//	solved := utils.SolveTimer(iteration, 30*time.Second, log)
//	status := lp.Solve(ctx)
//	solved(status)
func SolveTimer(iteration int, slow time.Duration, log zerolog.Logger) func(status fmt.Stringer) time.Duration {
	start := time.Now()

	return func(status fmt.Stringer) time.Duration {
		elapsed := time.Since(start)
		if slow > 0 && elapsed > slow {
			log.Warn().
				Int("iteration", iteration).
				Str("solver_status", status.String()).
				Dur("solve_time", elapsed).
				Dur("slow_after", slow).
				Msg("Slow solve, consider a lower solver time limit")
			return elapsed
		}
		log.Debug().
			Int("iteration", iteration).
			Str("solver_status", status.String()).
			Dur("solve_time", elapsed).
			Msg("Solve finished")
		return elapsed
	}
}

// PurgeTimer starts timing the deletion of runs created before cutoff. The
// returned func logs how many runs were removed.
func PurgeTimer(cutoff time.Time, log zerolog.Logger) func(deleted int64) time.Duration {
	start := time.Now()

	return func(deleted int64) time.Duration {
		elapsed := time.Since(start)
		event := log.Debug()
		msg := "Run purge finished"
		if elapsed > slowPurge {
			event, msg = log.Warn(), "Slow run purge, check the runs index"
		}
		event.
			Time("cutoff", cutoff).
			Int64("runs_deleted", deleted).
			Dur("purge_time", elapsed).
			Msg(msg)
		return elapsed
	}
}

// Package scheduler runs housekeeping jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrJobNotFound is returned by RunNow for an unregistered job name
var ErrJobNotFound = errors.New("job not found")

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus reports the last execution of a registered job
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Runs      int        `json:"runs"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type entry struct {
	job      Job
	schedule string
	cronID   cron.EntryID
	runs     int
	lastRun  time.Time
	lastErr  error
	running  sync.Mutex
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     log.With().Str("component", "scheduler").Logger(),
		entries: make(map[string]*entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 0 3 * * *"   - 3 AM every day
//   - "@hourly"       - Every hour
//   - "@every 30s"    - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	e := &entry{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() {
		if err := s.execute(e); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	e.cronID = id
	s.entries[job.Name()] = e

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.execute(e)
}

// Status returns the status of every registered job, sorted by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.entries))
	for name, e := range s.entries {
		st := JobStatus{Name: name, Schedule: e.schedule, Runs: e.runs}
		if !e.lastRun.IsZero() {
			last := e.lastRun
			st.LastRun = &last
		}
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			st.NextRun = &next
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// execute runs a job, one execution at a time per job
func (s *Scheduler) execute(e *entry) error {
	e.running.Lock()
	defer e.running.Unlock()

	s.log.Debug().Str("job", e.job.Name()).Msg("Running job")
	start := time.Now()
	err := e.job.Run()

	s.mu.Lock()
	e.runs++
	e.lastRun = start
	e.lastErr = err
	s.mu.Unlock()

	if err == nil {
		s.log.Debug().
			Str("job", e.job.Name()).
			Dur("duration_ms", time.Since(start)).
			Msg("Job completed")
	}
	return err
}

package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/rao/internal/database"
	"github.com/aristath/rao/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and job endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	scheduler *scheduler.Scheduler
	startedAt time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, db *database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		scheduler: sched,
		startedAt: time.Now(),
	}
}

// DatabaseStatus reports the health of the run database
type DatabaseStatus struct {
	Name    string          `json:"name"`
	Healthy bool            `json:"healthy"`
	Error   string          `json:"error,omitempty"`
	Stats   *database.Stats `json:"stats,omitempty"`
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	Goroutines    int             `json:"goroutines"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartedAt     string          `json:"started_at"`
	Database      *DatabaseStatus `json:"database,omitempty"`
	Jobs          int             `json:"jobs"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		StartedAt:     h.startedAt.Format(time.RFC3339),
	}

	if h.db != nil {
		response.Database = h.databaseStatus(r.Context())
		if !response.Database.Healthy {
			response.Status = "degraded"
		}
	}
	if h.scheduler != nil {
		response.Jobs = len(h.scheduler.Status())
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

func (h *SystemHandlers) databaseStatus(ctx context.Context) *DatabaseStatus {
	status := &DatabaseStatus{Name: h.db.Name(), Healthy: true}

	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Database health check failed")
		status.Healthy = false
		status.Error = err.Error()
		return status
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
		return status
	}
	status.Stats = stats
	return status
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// HandleJobsStatus handles GET /api/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.scheduler != nil {
		jobs = h.scheduler.Status()
	}

	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"total_jobs": len(jobs),
		"jobs":       jobs,
	})
}

// HandleTriggerJob handles POST /api/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if h.scheduler == nil {
		h.log.Warn().Str("job", name).Msg("Scheduler not configured")
		writeJSON(w, h.log, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Scheduler not configured",
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job triggered")

	if err := h.scheduler.RunNow(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrJobNotFound) {
			status = http.StatusNotFound
		} else {
			h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		}
		writeJSON(w, h.log, status, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, h.log, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Job " + name + " completed",
	})
}

// Package handlers provides HTTP handlers for optimisation runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/modules/rao"
)

// maxBodyBytes bounds a request body; batches carry several networks.
const maxBodyBytes = 32 << 20

// Handler handles run HTTP requests
type Handler struct {
	service *rao.Service
	log     zerolog.Logger
}

// NewHandler creates a new runs handler
func NewHandler(service *rao.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "runs").Logger(),
	}
}

// HandleCreateRun handles POST /api/runs
func (h *Handler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req rao.ProblemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.service.Run(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to run optimisation")
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope(run))
}

// HandleCreateBatch handles POST /api/runs/batch
func (h *Handler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Problems []rao.ProblemRequest `json:"problems"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	batchID, runs, err := h.service.RunBatch(r.Context(), body.Problems)
	if err != nil {
		h.writeError(w, err, "Failed to run batch")
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope(map[string]interface{}{
		"batch_id": batchID,
		"runs":     runs,
		"count":    len(runs),
	}))
}

// HandleListRuns handles GET /api/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	runs, err := h.service.List(r.Context(), r.URL.Query().Get("batch_id"), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}))
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "Failed to get run")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleDeleteRun handles DELETE /api/runs/{id}
func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "Failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeError maps service errors to status codes
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, rao.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, rao.ErrRunNotFound):
		http.Error(w, "Run not found", http.StatusNotFound)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

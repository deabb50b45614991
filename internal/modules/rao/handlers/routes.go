package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all run routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.HandleCreateRun)
		r.Post("/batch", h.HandleCreateBatch)
		r.Get("/", h.HandleListRuns)
		r.Get("/{id}", h.HandleGetRun)
		r.Delete("/{id}", h.HandleDeleteRun)
	})
}

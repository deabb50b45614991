// Package server provides the HTTP server and routing for the optimisation service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/config"
	"github.com/aristath/rao/internal/database"
	"github.com/aristath/rao/internal/events"
	"github.com/aristath/rao/internal/modules/rao"
	raohandlers "github.com/aristath/rao/internal/modules/rao/handlers"
	"github.com/aristath/rao/internal/scheduler"
)

// requestTimeout bounds every API call except the event stream. Runs are
// synchronous, so it must exceed the solver time limit times the iterations.
const requestTimeout = 10 * time.Minute

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	RunsDB     *database.DB
	Config     *config.Config
	Port       int
	DevMode    bool
	EventBus   *events.Bus
	RunService *rao.Service
	Scheduler  *scheduler.Scheduler // optional
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            Config
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.RunsDB, cfg.Scheduler),
		eventsStream:   NewEventsStreamHandler(cfg.EventBus, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived; kept outside the request timeout
		r.Get("/events/ws", s.eventsStream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/health", s.handleHealth)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.systemHandlers.HandleJobsStatus)
				r.Post("/{name}", s.systemHandlers.HandleTriggerJob)
			})

			if s.cfg.RunService != nil {
				raohandlers.NewHandler(s.cfg.RunService, s.cfg.Log).RegisterRoutes(r)
			}
		})
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

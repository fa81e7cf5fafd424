// Package server provides the HTTP server and routing for Custodian.
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

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/modules/classify"
	"github.com/aristath/custodian/internal/modules/normalize"
	"github.com/aristath/custodian/internal/pipeline"
	"github.com/aristath/custodian/internal/reliability"
)

// Config holds server dependencies.
type Config struct {
	Log           zerolog.Logger
	Port          int
	Pipeline      *pipeline.Pipeline
	Resolver      *classify.Resolver
	Normalizers   *normalize.Registry
	Priorities    *config.PriorityTable
	DB            *database.DB
	BackupService *reliability.BackupService // nil when backups are disabled
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	pipeline       *pipeline.Pipeline
	resolver       *classify.Resolver
	normalizers    *normalize.Registry
	priorities     *config.PriorityTable
	db             *database.DB
	backupService  *reliability.BackupService
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		log:           cfg.Log.With().Str("component", "server").Logger(),
		pipeline:      cfg.Pipeline,
		resolver:      cfg.Resolver,
		normalizers:   cfg.Normalizers,
		priorities:    cfg.Priorities,
		db:            cfg.DB,
		backupService: cfg.BackupService,
	}
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.DB)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(90 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/consolidate", s.handleConsolidate)
		r.Get("/providers", s.handleProviders)

		r.Route("/classification", func(r chi.Router) {
			r.Get("/{ticker}", s.handleGetClassification)
			r.Post("/{ticker}/refresh", s.handleRefreshClassification)
			r.Delete("/{ticker}", s.handleInvalidateClassification)
			r.Post("/refresh-stale", s.handleRefreshStale)
		})

		r.Post("/priorities/reload", s.handleReloadPriorities)
		r.Get("/priorities", s.handleGetPriorities)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})

		if s.backupService != nil {
			r.Route("/backups", func(r chi.Router) {
				r.Get("/", s.handleListBackups)
				r.Post("/", s.handleTriggerBackup)
			})
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
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

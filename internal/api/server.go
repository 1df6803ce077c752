package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/tenant-backup/internal/api/handler"
	mw "github.com/edvin/tenant-backup/internal/api/middleware"
)

// Pinger reports database reachability. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStats exposes worker pool occupancy for readiness. *runner.Pool
// satisfies it.
type QueueStats interface {
	Running() int
	Queued() int
}

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	db       Pinger
	queue    QueueStats
	backups  *handler.BackupJob
	gatherer prometheus.Gatherer
}

// Options wires a Server. Gatherer defaults to the global registry.
type Options struct {
	DB       Pinger
	Queue    QueueStats
	Jobs     handler.BackupJobManager
	Audit    handler.AuditTrail
	Location *time.Location
	Gatherer prometheus.Gatherer
}

func NewServer(logger zerolog.Logger, opts Options) *Server {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		db:       opts.DB,
		queue:    opts.Queue,
		backups:  handler.NewBackupJob(opts.Jobs, opts.Audit, opts.Location),
		gatherer: gatherer,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Actor)

		r.Get("/tenants/{tenantID}/backups", s.backups.ListByTenant)
		r.Post("/tenants/{tenantID}/backups", s.backups.Create)
		r.Get("/backups/{id}", s.backups.Get)
		r.Delete("/backups/{id}", s.backups.Delete)
		r.Get("/backups/{id}/download", s.backups.Download)
		r.Get("/backups/{id}/audit-logs", s.backups.AuditLogs)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]any{}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	if s.queue != nil {
		checks["running_jobs"] = s.queue.Running()
		checks["queued_jobs"] = s.queue.Queued()
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

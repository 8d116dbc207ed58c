// Package api serves the backup engine to the dashboard over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"suite-backup/internal/backup"
	"suite-backup/internal/config"
	"suite-backup/internal/logging"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultActorHeader = "X-Remote-User"
	shutdownTimeout    = 30 * time.Second
)

// Engine is the part of backup.Manager the API drives
type Engine interface {
	ListBackups(ctx context.Context) ([]backup.BackupArchive, error)
	CreateProjectBackup(ctx context.Context, includeMedia, includeLogs bool) (*backup.BackupArchive, error)
	CreateDatabaseBackup(ctx context.Context) (*backup.BackupArchive, error)
	CreateCompleteBackup(ctx context.Context, includeMedia, includeLogs bool) (*backup.BackupArchive, error)
	DeleteBackup(ctx context.Context, filename string) error
	DownloadBackup(ctx context.Context, filename string) (*backup.Download, error)
	RestoreBackup(ctx context.Context, filename string) (*backup.RestoreResult, error)
	PruneBackups(ctx context.Context, dryRun bool) (*backup.PruneResult, error)
	PushBackup(ctx context.Context, filename string) (*backup.RemoteObject, error)
	RemoteList(ctx context.Context) ([]backup.RemoteObject, error)
	FetchBackup(ctx context.Context, name string) (*backup.BackupArchive, error)
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Server routes dashboard requests to the engine
type Server struct {
	engine      Engine
	logger      *logging.Logger
	gatherer    prometheus.Gatherer
	actorHeader string
	checks      map[string]HealthCheck
	httpServer  *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHealthCheck adds a named dependency to /healthz
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithActorHeader names the trusted header carrying the acting user
func WithActorHeader(header string) Option {
	return func(s *Server) {
		if header != "" {
			s.actorHeader = header
		}
	}
}

// NewServer creates a server over engine
func NewServer(engine Engine, logger *logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{
		engine:      engine,
		logger:      logger,
		gatherer:    prometheus.DefaultGatherer,
		actorHeader: DefaultActorHeader,
		checks:      map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.correlation)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(securityHeaders)
		r.Use(s.actor)

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", s.listBackups)
			r.Post("/prune", s.pruneBackups)
			r.Post("/{kind}", s.createBackup)
			r.Delete("/{filename}", s.deleteBackup)
			r.Get("/{filename}/download", s.downloadBackup)
			r.Post("/{filename}/restore", s.restoreBackup)
			r.Post("/{filename}/push", s.pushBackup)
		})

		r.Route("/remote", func(r chi.Router) {
			r.Get("/", s.remoteList)
			r.Post("/{name}/fetch", s.fetchBackup)
		})
	})

	return r
}

// ListenAndServe serves until ctx is canceled, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("listen", cfg.Listen).Info("Backup API listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down backup API")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package server hosts the local status HTTP server: health probes, a
// version endpoint, and read/act surfaces over the job tracking and
// notification engines.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gobeacon/internal/errors"
	"github.com/3leaps/gobeacon/internal/server/handlers"
	"github.com/3leaps/gobeacon/internal/server/middleware"
)

// Server is the local status HTTP server.
type Server struct {
	host    string
	port    int
	version string
	logger  *zap.Logger

	jobs          handlers.JobSource
	notifications handlers.NotificationSource

	router chi.Router
	http   *http.Server
}

// Option configures a Server at construction.
type Option func(*Server)

// WithVersion sets the version string served at /version.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithJobSource mounts the /jobs endpoints over the given source.
func WithJobSource(src handlers.JobSource) Option {
	return func(s *Server) { s.jobs = src }
}

// WithNotificationSource mounts the /notifications endpoints over the
// given source.
func WithNotificationSource(src handlers.NotificationSource) Option {
	return func(s *Server) { s.notifications = src }
}

// New creates a server bound to host:port. Port 0 lets the OS pick.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:    host,
		port:    port,
		version: "dev",
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", s.versionHandler)

	if s.jobs != nil {
		jh := handlers.NewJobsHandler(s.jobs)
		r.Get("/jobs", jh.List)
		r.Get("/jobs/{id}", jh.Get)
	}

	if s.notifications != nil {
		nh := handlers.NewNotificationsHandler(s.notifications)
		r.Get("/notifications", nh.List)
		r.Get("/notifications/unread", nh.UnreadCount)
		r.Post("/notifications/{id}/read", nh.MarkRead)
		r.Post("/notifications/read-all", nh.MarkAllRead)
	}

	return r
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "{\"version\":%q}\n", s.version)
}

// Start runs the server until ctx is cancelled, then shuts down within
// shutdownTimeout. Returns nil on clean shutdown.
func (s *Server) Start(ctx context.Context, readTimeout, writeTimeout, idleTimeout, shutdownTimeout time.Duration) error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

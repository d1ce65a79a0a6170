package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/eapproval/internal/config"
)

// Server manages the observability endpoints (health checks and metrics).
// It runs on a dedicated port to isolate administrative traffic from business traffic.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   *chi.Mux
	server   *http.Server
	checkers []Checker
}

// NewServer creates a new instance of the observability server.
// The checkers are verified by the readiness probe.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, checkers ...Checker) *Server {
	if cfg == nil {
		panic("observability: config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		router:   r,
		checkers: checkers,
	}

	s.setupRoutes()

	return s
}

// setupRoutes registers all observability endpoints.
func (s *Server) setupRoutes() {
	s.router.Get(s.cfg.LivenessPath, s.liveness)
	s.router.Get(s.cfg.ReadinessPath, s.readiness)

	// promhttp.Handler() exposes every metric registered in metrics.go.
	s.router.Method(http.MethodGet, s.cfg.MetricsPath, promhttp.Handler())
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port and serves in a background goroutine.
// Binding happens synchronously so a busy port fails startup.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind observability port %s: %w", s.cfg.Port, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.Timeout,
		ReadHeaderTimeout: s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
		IdleTimeout:       s.cfg.Timeout * 3,
	}

	s.logger.Info("starting observability server",
		slog.String("addr", addr),
		slog.String("liveness_path", s.cfg.LivenessPath),
		slog.String("readiness_path", s.cfg.ReadinessPath),
		slog.String("metrics_path", s.cfg.MetricsPath),
	)

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Shutdown gracefully stops the observability server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	return s.server.Shutdown(ctx)
}

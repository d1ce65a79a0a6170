// Package restapi implements the HTTP/JSON API of the e-approval validator.
package restapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
	"github.com/rafaeljc/eapproval/internal/store"
)

// Service is the application layer behind the API (approval.Service).
type Service interface {
	Validate(ctx context.Context, payload ruleengine.DocumentPayload) (ruleengine.ValidationResponse, error)
	Metadata() (ruleengine.Metadata, error)
	Options() (ruleengine.Options, error)
	Reload(ctx context.Context, trigger rulestore.Trigger) (string, error)
	History(ctx context.Context, filter store.ListFilter, limit, offset int) ([]*store.ValidationRecord, int64, error)
	Record(ctx context.Context, id int64) (*store.ValidationRecord, error)
}

// defaultMaxBodyBytes applies when the caller passes a non-positive limit.
const defaultMaxBodyBytes = 1 << 20

// API holds the dependencies and the router of the REST API.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	svc    Service
	logger *slog.Logger

	// apiKeyHash is the SHA-256 hash (hex) of the key guarding the reload endpoint.
	apiKeyHash string

	// skipAuth disables authentication (test/dev environments only).
	skipAuth bool

	maxBodyBytes int64
}

// Config carries the API settings.
type Config struct {
	// APIKeyHash is required unless SkipAuth is set.
	APIKeyHash   string
	SkipAuth     bool
	MaxBodyBytes int64
}

// NewAPI creates the API and registers its routes.
//
// Panics if svc is nil or if APIKeyHash is empty while authentication is enabled.
func NewAPI(svc Service, cfg Config, logger *slog.Logger) *API {
	if svc == nil {
		panic("restapi: service cannot be nil")
	}
	if !cfg.SkipAuth && cfg.APIKeyHash == "" {
		panic("restapi: apiKeyHash cannot be empty when authentication is enabled")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	api := &API{
		Router:       chi.NewRouter(),
		svc:          svc,
		logger:       logger,
		apiKeyHash:   strings.ToLower(cfg.APIKeyHash),
		skipAuth:     cfg.SkipAuth,
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Metrics: counts and times requests by route pattern.
	a.Router.Use(Metrics)
	// Logger: injects a request-scoped logger and logs the outcome.
	a.Router.Use(RequestLogger(a.logger))
	// Recoverer: returns 500 instead of crashing on panics.
	a.Router.Use(middleware.Recoverer)
	// Content-Type: Forces JSON content type for API responses.
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Code: "ERR_NOT_FOUND", Message: "Route not found"})
	})

	// Public routes
	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", a.handleGetRules)
			r.Get("/options", a.handleGetOptions)

			// Reloading changes behaviour for every client: API key required.
			r.With(a.authenticateAPIKey).Post("/reload", a.handleReloadRules)
		})

		r.Post("/validate", a.handleValidate)

		r.Route("/validations", func(r chi.Router) {
			r.Get("/", a.handleListValidations)
			r.Get("/{id}", a.handleGetValidation)
		})
	})
}

// handleHealthCheck reports that the HTTP server is serving.
// Dependency checks live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

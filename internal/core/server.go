// Package core provides the API chassis of the forecasting service. It
// creates a chi router and enforces the cross-cutting concerns (panic
// recovery, request IDs, logging, metrics and error mapping) before requests
// reach the handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"forecasting/internal/config"
	"forecasting/internal/metrics"
)

// Server encapsulates the dependencies of the API so tests can inject their
// own.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   metrics.RequestMetrics

	// HealthChecks are checked by GET /health.
	HealthChecks []HealthCheck

	// MetricsHandler is mounted at Config.Observability.PrometheusPath when
	// both are set.
	MetricsHandler http.Handler

	// V1RouteRegistrars mount handler routes under /v1. They are set by the
	// entry point, which keeps core free of handler imports.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer creates a Server with an empty router. Call MountRoutes after
// setting the registrars and checks.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

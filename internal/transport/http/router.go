// Package http assembles the service's HTTP surface: middleware chain,
// versioned API routes, health, and metrics.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"baseproof/internal/certificate/handler"
	"baseproof/internal/platform/metrics"
	"baseproof/internal/platform/middleware"
)

// Deps carries everything the router needs.
type Deps struct {
	Certificates *handler.Handler
	Tokens       middleware.TokenValidator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// New builds the root router.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/v1", deps.Certificates.Routes(
		middleware.RequireAuth(deps.Tokens, deps.Logger),
		middleware.OptionalAuth(deps.Tokens),
	))

	return r
}

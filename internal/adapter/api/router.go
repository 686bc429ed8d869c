// Package api serves the relay's admin endpoints: Prometheus metrics, a
// health check and the backend ingest status.
package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/ctf-relay/internal/adapter/api/handler"
	"github.com/V4T54L/ctf-relay/internal/adapter/api/middleware"
)

// NewAdminRouter creates the admin HTTP router.
func NewAdminRouter(status handler.StatusProvider, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	statusHandler := handler.NewStatusHandler(status, logger)

	mux.HandleFunc("GET /health", statusHandler.HealthCheck)
	mux.HandleFunc("GET /status", statusHandler.Status)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return middleware.Logging(logger)(mux)
}

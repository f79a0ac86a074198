package httpapi

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging, middleware.Recoverer)
	r.NotFound(app.notFoundHandler)
	r.MethodNotAllowed(app.methodNotAllowedHandler)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(app.Metrics.Registry, promhttp.HandlerOpts{
		Registry:          app.Metrics.Registry,
		EnableOpenMetrics: false,
	}))
	r.Get("/healthz", app.healthHandler)
	r.Get("/debug/cycle", app.cycleHandler)
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)
	return r
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"duck-ingest/internal/middleware"
)

// RouterConfig holds the cross-cutting settings of the HTTP router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimit          middleware.RateLimitConfig
	// Metrics is mounted at /metrics and instruments every route when set.
	Metrics MetricsProvider
}

// MetricsProvider exposes a scrape handler and request instrumentation.
type MetricsProvider interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// NewRouter builds the chi router serving the health, metrics and /v1 routes.
// ctx bounds background work started by middleware.
func NewRouter(ctx context.Context, h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger.With("component", "http")))
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "X-Triggered-By"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimiter(ctx, cfg.RateLimit))
		}
		r.Get("/sources", h.ListSources)
		r.Get("/sources/{code}/mappings", h.ListSourceMappings)
		r.Get("/sources/{code}/order", h.GetSourceOrder)
		r.Post("/sources/{code}/runs", h.RunSource)
		r.Post("/mappings/{ref}/runs", h.RunMapping)
		r.Get("/executions", h.ListExecutions)
		r.Get("/executions/{id}", h.GetExecution)
		r.Get("/executions/{id}/violations", h.ListViolations)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: http.StatusNotFound, Message: "route not found"})
	})
	return r
}

// Package metrics exposes ingestion and HTTP telemetry in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/service/ingestion"
)

// Recorder holds the ingestion metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	rowsTotal         *prometheus.CounterVec
	violationsTotal   *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ ingestion.Observer = (*Recorder)(nil)

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		executionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_executions_total",
				Help: "Total number of mapping executions by terminal status",
			},
			[]string{"status"},
		),
		executionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_execution_duration_seconds",
				Help:    "Mapping execution time in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
		),
		rowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_rows_total",
				Help: "Total number of rows produced by each pipeline phase",
			},
			[]string{"phase"},
		),
		violationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_quality_violations_total",
				Help: "Total number of data-quality violations by severity",
			},
			[]string{"severity"},
		),

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObservePhase implements ingestion.Observer.
func (r *Recorder) ObservePhase(_ string, phase ingestion.Phase, rows int64) {
	if rows > 0 {
		r.rowsTotal.WithLabelValues(string(phase)).Add(float64(rows))
	}
}

// ObserveViolation implements ingestion.Observer.
func (r *Recorder) ObserveViolation(severity domain.Severity) {
	r.violationsTotal.WithLabelValues(string(severity)).Inc()
}

// ObserveExecution implements ingestion.Observer.
func (r *Recorder) ObserveExecution(_ string, status string, elapsed time.Duration) {
	r.executionsTotal.WithLabelValues(status).Inc()
	r.executionDuration.Observe(elapsed.Seconds())
}

// Middleware records request counts and latency per chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := req.URL.Path
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.httpRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.httpRequestDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}

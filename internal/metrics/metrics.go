package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version append sources
const (
	SourceCreate  = "create"
	SourceUpload  = "upload"
	SourceRestore = "restore"
)

// Conflict outcomes
const (
	ConflictRetried  = "retried"
	ConflictSurfaced = "surfaced"
)

// View outcomes
const (
	ViewCounted    = "counted"
	ViewSuppressed = "suppressed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger metrics
	VersionsAppendedTotal *prometheus.CounterVec
	VersionConflictsTotal *prometheus.CounterVec

	// Counter metrics
	DownloadsTotal prometheus.Counter
	ViewsTotal     *prometheus.CounterVec

	// Access metrics
	PermissionDeniedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dam_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dam_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		VersionsAppendedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dam_versions_appended_total",
				Help: "Total number of asset versions appended to the ledger",
			},
			[]string{"source"},
		),
		VersionConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dam_version_conflicts_total",
				Help: "Total number of lost version number races",
			},
			[]string{"outcome"},
		),
		DownloadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dam_downloads_total",
				Help: "Total number of asset downloads",
			},
		),
		ViewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dam_views_total",
				Help: "Total number of tracked asset views",
			},
			[]string{"result"},
		),
		PermissionDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dam_permission_denied_total",
				Help: "Total number of operations rejected by the role policy",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.VersionsAppendedTotal,
		m.VersionConflictsTotal,
		m.DownloadsTotal,
		m.ViewsTotal,
		m.PermissionDeniedTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments HTTP requests.
// The route label is the chi route pattern so path parameters do not explode cardinality.
func HTTPMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler serves the registry in the Prometheus exposition format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

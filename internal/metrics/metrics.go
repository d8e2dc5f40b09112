package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the audit service's operational metrics.
type Metrics interface {
	// RecordInsert counts one stored attempt with its outcome status.
	RecordInsert(status string, duration time.Duration)

	// RecordQueryDuration times one read-side repository call.
	RecordQueryDuration(operation string, duration time.Duration)

	// SetQueueDepth reports the current ingest queue backlog.
	SetQueueDepth(depth int)

	// RecordHTTPRequest counts one handled HTTP request.
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)

	// HTTPHandler serves the scrape endpoint.
	HTTPHandler() http.Handler
}

// NoopMetrics discards everything. Used in tests and when the scrape
// endpoint is disabled.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) RecordInsert(status string, duration time.Duration)           {}
func (m *NoopMetrics) RecordQueryDuration(operation string, duration time.Duration) {}
func (m *NoopMetrics) SetQueueDepth(depth int)                                      {}
func (m *NoopMetrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// PrometheusMetrics implements Metrics on a dedicated registry so
// several instances can coexist in tests.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	insertsTotal   *prometheus.CounterVec
	insertDuration *prometheus.HistogramVec
	queryDuration  *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry: registry,

		insertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_inserts_total",
			Help: "Audit records stored, by outcome status.",
		}, []string{"status"}),

		insertDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_insert_duration_seconds",
			Help:    "Time spent persisting one audit record.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),

		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_query_duration_seconds",
			Help:    "Time spent on read-side repository calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "audit_ingest_queue_depth",
			Help: "Records waiting in the ingest queue.",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_http_requests_total",
			Help: "HTTP requests handled, by method, route and status code.",
		}, []string{"method", "route", "code"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *PrometheusMetrics) RecordInsert(status string, duration time.Duration) {
	m.insertsTotal.WithLabelValues(status).Inc()
	m.insertDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordQueryDuration(operation string, duration time.Duration) {
	m.queryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *PrometheusMetrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	code := strconv.Itoa(statusCode)
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

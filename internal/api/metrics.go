package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the HTTP server. Each server
// owns its registry so tests can run several instances side by side.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scriptWrites    *prometheus.CounterVec
	analysisTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the server's collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptd",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scriptd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		scriptWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptd",
			Name:      "script_writes_total",
			Help:      "Script mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptd",
			Name:      "analysis_results_total",
			Help:      "Analysis attempts by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.scriptWrites,
		m.analysisTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveWrite records one script mutation.
func (m *Metrics) ObserveWrite(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.scriptWrites.WithLabelValues(operation, outcome).Inc()
}

// ObserveAnalysis records one analysis attempt.
func (m *Metrics) ObserveAnalysis(outcome string) {
	m.analysisTotal.WithLabelValues(outcome).Inc()
}

// MetricsMiddleware records request counts and latency per route. The route
// label uses only the first path segment to keep cardinality bounded.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			m.ObserveRequest(r.Method, routeLabel(r.URL.Path), wrapped.statusCode, time.Since(start))
		})
	}
}

// routeLabel collapses entity IDs out of the path so each route is one series
func routeLabel(path string) string {
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return path
}

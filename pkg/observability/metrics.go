package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control metrics
	GateDecisionsTotal       *prometheus.CounterVec
	RateLimitRejectionsTotal *prometheus.CounterVec
	RateLimitStoreErrors     prometheus.Counter
	PermissionDecisionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_gate_decisions_total",
				Help: "Request gate decisions by route class and action",
			},
			[]string{"class", "action"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_rate_limit_rejections_total",
				Help: "Requests rejected with 429 by route class",
			},
			[]string{"class"},
		),
		RateLimitStoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantgate_rate_limit_store_errors_total",
				Help: "Counter store failures (requests were allowed through)",
			},
		),
		PermissionDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_permission_decisions_total",
				Help: "Permission evaluator outcomes",
			},
			[]string{"resource", "action", "outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GateDecisionsTotal,
		m.RateLimitRejectionsTotal,
		m.RateLimitStoreErrors,
		m.PermissionDecisionsTotal,
	)

	return m
}

// ObserveGateDecision records a gate outcome
func (m *Metrics) ObserveGateDecision(class, action string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(class, action).Inc()
}

// ObserveRateLimited records a 429
func (m *Metrics) ObserveRateLimited(class string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(class).Inc()
}

// ObserveRateLimitStoreError records a counter store failure
func (m *Metrics) ObserveRateLimitStoreError() {
	if m == nil {
		return
	}
	m.RateLimitStoreErrors.Inc()
}

// ObservePermission records an evaluator outcome
func (m *Metrics) ObservePermission(resource, action string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.PermissionDecisionsTotal.WithLabelValues(resource, action, outcome).Inc()
}

// HTTPMiddleware records request counts and latency. Routes are labelled by
// their mux template so path parameters do not explode cardinality.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := httputil.NewStatusRecorder(w)

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the /metrics handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveGateDecision("protected", "redirect")
	m.ObserveGateDecision("protected", "redirect")
	m.ObserveRateLimited("auth")
	m.ObserveRateLimitStoreError()
	m.ObservePermission("member", "delete", false)
	m.ObservePermission("member", "read", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateDecisionsTotal.WithLabelValues("protected", "redirect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitStoreErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionDecisionsTotal.WithLabelValues("member", "delete", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionDecisionsTotal.WithLabelValues("member", "read", "allowed")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGateDecision("public", "pass")
		m.ObserveRateLimited("api")
		m.ObserveRateLimitStoreError()
		m.ObservePermission("file", "read", true)
	})
}

func TestMetrics_HTTPMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(m.HTTPMiddleware)
	router.HandleFunc("/api/orgs/{org_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orgs/abc", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orgs/def", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/orgs/{org_id}", "404")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "tenantgate_http_requests_total")
}

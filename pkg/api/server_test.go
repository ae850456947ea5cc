package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

func TestServer_Health(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti)

	rec := h.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "multi", body["mode"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_DeprecatedEndpoints(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"organizations", "/api/organizations", http.StatusGone},
		{"checkout", "/api/billing/checkout", http.StatusGone},
		{"sign-up", "/api/auth/sign-up", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, tt.path, "alice", map[string]string{})
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decode[httputil.ErrorResponse](t, rec).Error)
		})
	}
}

func TestServer_RequiresSession(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti)

	for _, path := range []string{"/api/me", "/api/orgs"} {
		rec := h.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestServer_MetricsMiddlewareRunsOnRoutes(t *testing.T) {
	var seen []string
	h := newHarness(t, orgs.ModeNone, func(cfg *Config) {
		cfg.Metrics = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = append(seen, r.URL.Path)
				next.ServeHTTP(w, r)
			})
		}
	})

	h.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, []string{"/api/health"}, seen)
}

func TestServer_MalformedBody(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti)

	rec := h.do(http.MethodPost, "/api/orgs", "alice", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckPermission(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti)
	org := h.createOrg("alice", "Acme")
	h.orgs.addMember(org.ID, "bob", rbac.RoleViewer)

	t.Run("global permission without an organization", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/permissions/check", "bob", CheckPermissionRequest{
			Resource: rbac.ResourceOrganization, Action: rbac.ActionCreate,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[rbac.Result](t, rec)
		assert.True(t, result.Allowed)
		assert.Equal(t, "organization:create", result.Permission)
	})

	t.Run("organization permission without an organization", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/permissions/check", "bob", CheckPermissionRequest{
			Resource: rbac.ResourceOrganization, Action: rbac.ActionRead,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[rbac.Result](t, rec)
		assert.False(t, result.Allowed)
		assert.Equal(t, rbac.ReasonScopeNotSatisfied, result.Reason)
	})

	t.Run("ownership grants personal permissions", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/permissions/check", "bob", CheckPermissionRequest{
			Resource: rbac.ResourceFile, Action: rbac.ActionDelete,
			Target: &rbac.ResourceContext{ID: "notes.txt", OwnerID: "bob"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "file:delete:own", decode[rbac.Result](t, rec).Permission)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/permissions/check", "bob", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decode[httputil.ErrorResponse](t, rec).Fields
		assert.Contains(t, fields, "resource")
		assert.Contains(t, fields, "action")
	})
}

func TestDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"org not found", orgs.ErrNotFound, http.StatusNotFound},
		{"slug taken", orgs.ErrSlugTaken, http.StatusConflict},
		{"last owner", orgs.ErrLastOwner, http.StatusConflict},
		{"organizations denied", orgs.ErrOrganizationsDenied, http.StatusForbidden},
		{"role not found", rbac.ErrRoleNotFound, http.StatusNotFound},
		{"unknown permission", rbac.ErrUnknownPermission, http.StatusBadRequest},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domainError("op", tt.err)
			assert.Equal(t, tt.status, httputil.StatusFor(err))
		})
	}

	t.Run("opaque upstream message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		httputil.WriteAppError(rec, req, domainError("load thing", assert.AnError))
		assert.Equal(t, "internal server error", decode[httputil.ErrorResponse](t, rec).Error)
	})
}

func TestServer_GateTransitions(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti, withGate(nil))

	tests := []struct {
		name     string
		method   string
		path     string
		userID   string
		status   int
		location string
	}{
		{"public api passes without a session", http.MethodGet, "/api/health", "", http.StatusOK, ""},
		{"protected api answers 401", http.MethodGet, "/api/me", "", http.StatusUnauthorized, ""},
		{"protected api passes with a session", http.MethodGet, "/api/me", "alice", http.StatusOK, ""},
		{"protected page redirects to sign-in", http.MethodGet, "/dashboard", "", http.StatusTemporaryRedirect, "/auth/sign-in"},
		{"auth page redirects signed-in users", http.MethodGet, "/auth/sign-in", "alice", http.StatusTemporaryRedirect, "/dashboard"},
		{"admin redirects anonymous callers", http.MethodGet, "/admin/users", "", http.StatusTemporaryRedirect, "/unauthorized"},
		{"retired sign-up answers without a session", http.MethodPost, "/api/auth/sign-up", "", http.StatusConflict, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.path, tt.userID, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}

	t.Run("admin passes signed-in users", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/admin/users", "alice", nil)
		assert.NotEqual(t, http.StatusTemporaryRedirect, rec.Code)
	})
}

func TestServer_GatedWebhook(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti, withGate(nil))
	payload := `{"id":"evt_gate","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","status":"active"}}}`

	rec := signedWebhook(h, payload, time.Now())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, h.billing.events, 1)
}

func TestServer_RateLimited(t *testing.T) {
	h := newHarness(t, orgs.ModeMulti, withGate(map[middleware.RouteClass]middleware.Limit{
		middleware.ClassProtected: {Requests: 2, Window: time.Hour},
	}))

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", "alice", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", "alice", nil).Code)

	rec := h.do(http.MethodGet, "/api/me", "alice", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Limits are per user and per class
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", "bob", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/health", "alice", nil).Code)
}

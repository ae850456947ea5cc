package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/profile"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

const (
	defaultMaxBodyBytes   = 1 << 20
	defaultMaxUploadBytes = 32 << 20
	maxWebhookBytes       = 64 << 10
)

// FileStore keeps tenant files. Size returns storage.ErrObjectNotFound when
// nothing is stored under name.
type FileStore interface {
	Size(ctx context.Context, filter orgs.OwnerFilter, name string) (int64, error)
	Put(ctx context.Context, filter orgs.OwnerFilter, name string, body io.Reader, contentType string) (*storage.Object, error)
	Delete(ctx context.Context, filter orgs.OwnerFilter, name string) (int64, error)
}

// SignInHandlers runs the identity provider sign-in flow
type SignInHandlers interface {
	Begin(w http.ResponseWriter, r *http.Request)
	Callback(w http.ResponseWriter, r *http.Request)
	SignOut(w http.ResponseWriter, r *http.Request)
}

// Config wires the server to its collaborators. Files, SignIn, Webhooks,
// Metrics and Tracing are optional.
type Config struct {
	Logger      *logrus.Logger
	Resolver    *orgs.Resolver
	Gate        *middleware.Gate
	RateLimiter *middleware.RateLimitMiddleware
	Quota       *middleware.QuotaMiddleware
	Metrics     func(http.Handler) http.Handler

	Orgs       orgs.Service
	Authorizer *rbac.Authorizer
	Roles      rbac.RoleStore
	Billing    billing.Service
	Webhooks   *billing.WebhookVerifier
	Profiles   profile.Store
	Files      FileStore
	SignIn     SignInHandlers

	Version        string
	MaxUploadBytes int64
	Tracing        bool
}

// Server is the HTTP surface of the service
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *logrus.Logger

	resolver   *orgs.Resolver
	orgs       orgs.Service
	authorizer *rbac.Authorizer
	roles      rbac.RoleStore
	billing    billing.Service
	webhooks   *billing.WebhookVerifier
	profiles   profile.Store
	files      FileStore
	signIn     SignInHandlers

	version        string
	maxUploadBytes int64
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		router:         mux.NewRouter(),
		logger:         logger,
		resolver:       cfg.Resolver,
		orgs:           cfg.Orgs,
		authorizer:     cfg.Authorizer,
		roles:          cfg.Roles,
		billing:        cfg.Billing,
		webhooks:       cfg.Webhooks,
		profiles:       cfg.Profiles,
		files:          cfg.Files,
		signIn:         cfg.SignIn,
		version:        cfg.Version,
		maxUploadBytes: maxUpload,
	}
	s.setupRoutes(cfg)

	// The gate stores the session the rate limiter keys on
	outer := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
	}
	if cfg.Gate != nil {
		outer = append(outer, cfg.Gate.Handler)
	}
	if cfg.RateLimiter != nil {
		outer = append(outer, cfg.RateLimiter.Handler)
	}
	s.handler = httputil.Chain(outer...)(s.router)
	if cfg.Tracing {
		s.handler = otelhttp.NewHandler(s.handler, "tenantgate",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return s
}

func (s *Server) setupRoutes(cfg Config) {
	if cfg.Metrics != nil {
		s.router.Use(cfg.Metrics)
	}

	// Auth routes
	if s.signIn != nil {
		s.router.HandleFunc("/auth/sign-in", s.signIn.Begin).Methods("GET")
		s.router.HandleFunc("/auth/callback", s.signIn.Callback).Methods("GET")
		s.router.HandleFunc("/auth/sign-out", s.signIn.SignOut).Methods("POST")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(middleware.OrgContext(s.orgs, s.resolver))
	if cfg.Quota != nil {
		api.Use(cfg.Quota.TrackAPIRequests)
	}

	api.HandleFunc("/health", s.health).Methods("GET")

	// Profile
	api.HandleFunc("/me", s.getMe).Methods("GET")
	api.HandleFunc("/profile", s.updateProfile).Methods("PUT")

	// Organizations
	api.HandleFunc("/orgs", s.listOrganizations).Methods("GET")
	api.HandleFunc("/orgs", s.createOrganization).Methods("POST")
	api.Handle("/orgs/{org_id}", s.orgPermission(rbac.ResourceOrganization, rbac.ActionRead, orgResource, s.getOrganization)).Methods("GET")
	api.HandleFunc("/orgs/{org_id}", s.updateOrganization).Methods("PUT")

	// Members and invitations
	api.Handle("/orgs/{org_id}/members", s.orgPermission(rbac.ResourceMember, rbac.ActionRead, allMembers, s.listMembers)).Methods("GET")
	api.HandleFunc("/orgs/{org_id}/members", s.inviteMember).Methods("POST")
	api.HandleFunc("/orgs/{org_id}/members/{user_id}", s.updateMember).Methods("PUT")
	api.HandleFunc("/orgs/{org_id}/members/{user_id}", s.removeMember).Methods("DELETE")
	api.HandleFunc("/orgs/{org_id}/invitations/accept", s.acceptInvitation).Methods("POST")

	// Custom roles
	api.Handle("/orgs/{org_id}/roles", s.orgPermission(rbac.ResourceRole, rbac.ActionRead, orgResource, s.listRoles)).Methods("GET")
	api.HandleFunc("/orgs/{org_id}/roles", s.createRole).Methods("POST")
	api.HandleFunc("/orgs/{org_id}/roles/{role_id}", s.deleteRole).Methods("DELETE")

	api.HandleFunc("/permissions/check", s.checkPermission).Methods("POST")

	// Billing; the org-prefixed forms select the organization in multi mode
	for _, prefix := range []string{"", "/orgs/{org_id}"} {
		api.HandleFunc(prefix+"/billing/subscription", s.getSubscription).Methods("GET")
		api.HandleFunc(prefix+"/billing/usage", s.getUsage).Methods("GET")
		api.HandleFunc(prefix+"/files/{name:.+}", s.putFile).Methods("PUT")
		api.HandleFunc(prefix+"/files/{name:.+}", s.deleteFile).Methods("DELETE")
	}
	api.HandleFunc("/webhooks/billing", s.billingWebhook).Methods("POST")

	// Deprecated endpoints
	api.HandleFunc("/organizations", gone("this endpoint was removed, use POST /api/orgs")).Methods("POST")
	api.HandleFunc("/billing/checkout", gone("checkout sessions are created by the payment processor")).Methods("POST")
	api.HandleFunc("/auth/sign-up", s.signUpMoved).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{
		"status":  "ok",
		"version": s.version,
		"mode":    string(s.resolver.Mode()),
	})
}

func gone(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAppError(w, r, &httputil.GoneError{Message: message})
	}
}

func (s *Server) signUpMoved(w http.ResponseWriter, r *http.Request) {
	httputil.WriteAppError(w, r, &httputil.ConflictError{
		Message: "sign-up moved to the identity provider, start at GET /auth/sign-in",
	})
}

// decodeJSON parses a bounded JSON request body
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	return httputil.ParseJSON(r, dest)
}

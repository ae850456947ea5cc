// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantgate/pkg/contextkeys"
//	ctx = contextkeys.WithSession(ctx, session)
//	session, ok := contextkeys.Session(ctx).(*auth.Session)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *auth.Session
	// Set by: middleware.Gate (pkg/middleware/gate.go)
	// Required by: protected API endpoints, permission checks, rate limit keying
	SessionKey Key = "session"

	// OrgKey contains *orgs.Organization
	// Set by: middleware.OrgContext (pkg/middleware/org.go)
	// Required by: org-scoped endpoints, owner filters
	OrgKey Key = "organization"

	// MembershipKey contains *orgs.Membership for the caller in OrgKey
	// Set by: middleware.OrgContext
	MembershipKey Key = "membership"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry scoped to the request
	// Set by: httputil.LoggingMiddleware
	LoggerKey Key = "logger"
)

// WithSession adds the authenticated session to the context
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// Session returns the raw session value stored in ctx, or nil
func Session(ctx context.Context) interface{} {
	return ctx.Value(SessionKey)
}

// WithOrg adds organization to the context
func WithOrg(ctx context.Context, org interface{}) context.Context {
	return context.WithValue(ctx, OrgKey, org)
}

// WithMembership adds the caller's membership to the context
func WithMembership(ctx context.Context, membership interface{}) context.Context {
	return context.WithValue(ctx, MembershipKey, membership)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers the error taxonomy used by every handler, JSON helpers,
// parameter parsing, and the outermost middleware (request IDs, logging, recovery).
//
// # Error Taxonomy
//
//	ValidationError      400  field-level messages
//	AuthenticationError  401  missing or invalid session
//	AuthorizationError   403  always rendered as "access denied"
//	NotFoundError        404
//	ConflictError        409  duplicates, moved endpoints
//	GoneError            410  removed endpoints
//	RateLimitedError     429  Retry-After header
//	UpstreamError        500  logged server-side, opaque to the client
//
// Handlers return one of these and call:
//
//	httputil.WriteAppError(w, r, err)
//
// # Request Parsing
//
//	var req CreateOrgRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteAppError(w, r, err) // 400 with field "body"
//		return
//	}
//	orgID, err := httputil.PathVar(r, "org_id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: request gate, rate limiting, organization context
package httputil

package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValidationError reports malformed input. Fields maps a field name to its message.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// AuthenticationError means the session is missing or invalid
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication required"
	}
	return e.Message
}

// AuthorizationError means the session is valid but the permission check denied the action.
// The client always sees "access denied"; Reason is for server logs only.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "access denied"
}

// QuotaError means the action would exceed a plan limit. Unlike
// AuthorizationError its message reaches the client.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return e.Message
}

// NotFoundError means the requested entity does not exist (or is hidden from the caller)
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return e.Resource + " not found"
}

// ConflictError marks duplicate entities and endpoints that moved elsewhere
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// GoneError marks removed endpoints
type GoneError struct {
	Message string
}

func (e *GoneError) Error() string {
	return e.Message
}

// RateLimitedError carries how long the caller has to wait
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %d seconds", retryAfterSeconds(e.RetryAfter))
}

// UpstreamError wraps a failure of the hosted backend. Err is logged, never returned to the client.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError unless it already carries a client-facing type
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if StatusFor(err) != http.StatusInternalServerError {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	var (
		validationErr *ValidationError
		authnErr      *AuthenticationError
		authzErr      *AuthorizationError
		quotaErr      *QuotaError
		notFoundErr   *NotFoundError
		conflictErr   *ConflictError
		goneErr       *GoneError
		rateErr       *RateLimitedError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &authnErr):
		return http.StatusUnauthorized
	case errors.As(err, &authzErr), errors.As(err, &quotaErr):
		return http.StatusForbidden
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &goneErr):
		return http.StatusGone
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RetryAfterHeader formats d for the Retry-After header
func RetryAfterHeader(d time.Duration) string {
	return strconv.FormatInt(retryAfterSeconds(d), 10)
}

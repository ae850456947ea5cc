// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	RetryAfter int64             `json:"retry_after,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
}

// WriteAppError maps err onto the error taxonomy and writes the response.
// Upstream and unknown errors are logged with full detail and collapsed to an opaque message.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		RequestID: contextkeys.GetRequestID(r.Context()),
	}

	var (
		validationErr *ValidationError
		rateErr       *RateLimitedError
		quotaErr      *QuotaError
	)
	switch {
	case errors.As(err, &validationErr):
		resp.Error = "invalid input"
		resp.Fields = validationErr.Fields
	case errors.As(err, &rateErr):
		resp.RetryAfter = retryAfterSeconds(rateErr.RetryAfter)
		w.Header().Set("Retry-After", RetryAfterHeader(rateErr.RetryAfter))
	case errors.As(err, &quotaErr):
		resp.Error = quotaErr.Message
	case status == http.StatusForbidden:
		var authzErr *AuthorizationError
		if errors.As(err, &authzErr) && authzErr.Reason != "" {
			LoggerFrom(r).WithField("reason", authzErr.Reason).Info("access denied")
		}
		resp.Error = "access denied"
	case status == http.StatusInternalServerError:
		LoggerFrom(r).WithError(err).Error("request failed")
		resp.Error = "internal server error"
	}

	WriteJSON(w, status, resp)
}

// LoggerFrom returns the request-scoped logger, or the standard logger
func LoggerFrom(r *http.Request) logrus.FieldLogger {
	if entry, ok := r.Context().Value(contextkeys.LoggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.StandardLogger()
}

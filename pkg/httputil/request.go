package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ParseJSON decodes JSON from the request body into the destination.
// Decoding failures are reported as a ValidationError on field "body".
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return NewValidationError("body", "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return NewValidationError("body", "invalid JSON")
	}
	return nil
}

// PathVar extracts a required path parameter
func PathVar(r *http.Request, key string) (string, error) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	if val == "" {
		return "", NewValidationError(key, "is required")
	}
	return val, nil
}

// ParseQueryInt extracts an integer query parameter with a default value
func ParseQueryInt(r *http.Request, key string, defaultVal int) int {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return val
}

// Validator accumulates field errors
type Validator struct {
	fields map[string]string
}

// Require records an error for field when value is blank
func (v *Validator) Require(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "is required")
	}
	return v
}

// Check records message for field when ok is false
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.Add(field, message)
	}
	return v
}

// Add records a field error; the first message for a field wins
func (v *Validator) Add(field, message string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = message
	}
}

// Err returns a ValidationError if any field failed
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

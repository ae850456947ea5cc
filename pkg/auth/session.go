package auth

import (
	"net/http"
	"strings"
)

// SessionResolver reads credentials from a request
type SessionResolver struct {
	verifier   TokenVerifier
	cookieName string
}

// NewSessionResolver creates a resolver that accepts a bearer token or the named cookie
func NewSessionResolver(verifier TokenVerifier, cookieName string) *SessionResolver {
	return &SessionResolver{verifier: verifier, cookieName: cookieName}
}

// Resolve returns the session of r. It returns ErrNoSession when no credentials
// are present and an ErrInvalidSession-wrapped error when they fail to verify.
func (sr *SessionResolver) Resolve(r *http.Request) (*Session, error) {
	token := bearerToken(r)
	if token == "" && sr.cookieName != "" {
		if cookie, err := r.Cookie(sr.cookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return nil, ErrNoSession
	}

	return sr.verifier.Verify(r.Context(), token)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

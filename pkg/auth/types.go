package auth

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// User is an identity asserted by the identity provider
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Session is a verified sign-in
type Session struct {
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

var (
	// ErrNoSession means the request carried no credentials
	ErrNoSession = errors.New("no session")

	// ErrInvalidSession means the credentials were present but did not verify
	ErrInvalidSession = errors.New("invalid session")
)

// WithSession stores the session in ctx
func WithSession(ctx context.Context, s *Session) context.Context {
	return contextkeys.WithSession(ctx, s)
}

// SessionFromContext returns the session stored by the request gate
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := contextkeys.Session(ctx).(*Session)
	return s, ok && s != nil
}

// UserFromContext returns the signed-in user, or nil
func UserFromContext(ctx context.Context) *User {
	if s, ok := SessionFromContext(ctx); ok {
		return &s.User
	}
	return nil
}

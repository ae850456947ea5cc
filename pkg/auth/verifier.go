package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier turns a raw token into a session
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Session, error)
}

// Verifier verifies ID tokens issued by the identity provider
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider at issuerURL. The provider is returned
// so the sign-in flow can reuse its endpoints.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*Verifier, *oidc.Provider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{verifier: verifier}, provider, nil
}

// NewVerifierFromKeySet creates a verifier that checks signatures against keySet
func NewVerifierFromKeySet(issuerURL, clientID string, keySet oidc.KeySet) *Verifier {
	return &Verifier{
		verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}),
	}
}

type idTokenClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify checks the token signature, issuer, audience and expiry
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Session, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidSession, err)
	}

	if idToken.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}

	return &Session{
		User: User{
			ID:        idToken.Subject,
			Email:     claims.Email,
			Name:      claims.Name,
			AvatarURL: claims.Picture,
		},
		ExpiresAt: idToken.Expiry,
	}, nil
}

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

const (
	stateCookieName = "tg_oauth_state"
	stateTTL        = 10 * time.Minute
	stateLength     = 32
)

// SignInConfig configures the sign-in flow
type SignInConfig struct {
	OAuth2             *oauth2.Config
	CookieName         string
	CookieSecure       bool
	DefaultRedirectURL string
	LoginURL           string
}

// SignInFlow runs the authorization code flow against the identity provider
type SignInFlow struct {
	oauth2             *oauth2.Config
	verifier           TokenVerifier
	cookieName         string
	secure             bool
	defaultRedirectURL string
	loginURL           string
}

// NewSignInFlow creates a sign-in flow
func NewSignInFlow(cfg SignInConfig, verifier TokenVerifier) *SignInFlow {
	return &SignInFlow{
		oauth2:             cfg.OAuth2,
		verifier:           verifier,
		cookieName:         cfg.CookieName,
		secure:             cfg.CookieSecure,
		defaultRedirectURL: cfg.DefaultRedirectURL,
		loginURL:           cfg.LoginURL,
	}
}

// NewOAuth2Config builds the client configuration for a discovered provider
func NewOAuth2Config(provider *oidc.Provider, clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
}

// Begin redirects to the identity provider with a fresh state cookie
func (f *SignInFlow) Begin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		httputil.WriteAppError(w, r, httputil.Upstream("generate sign-in state", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, f.oauth2.AuthCodeURL(state), http.StatusFound)
}

// Callback completes sign-in: it validates state, exchanges the code, verifies
// the ID token and stores it in the session cookie.
func (f *SignInFlow) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		msg := query.Get("error_description")
		if msg == "" {
			msg = providerErr
		}
		httputil.WriteAppError(w, r, &httputil.AuthenticationError{Message: "sign-in was not completed: " + msg})
		return
	}

	v := &httputil.Validator{}
	v.Require("code", query.Get("code"))
	v.Require("state", query.Get("state"))
	if err := v.Err(); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(query.Get("state"))) != 1 {
		httputil.WriteAppError(w, r, httputil.NewValidationError("state", "sign-in session expired, please start again"))
		return
	}

	token, err := f.oauth2.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		httputil.LoggerFrom(r).WithError(err).Warn("authorization code exchange failed")
		httputil.WriteAppError(w, r, &httputil.AuthenticationError{Message: "sign-in failed, please try again"})
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		httputil.WriteAppError(w, r, &httputil.AuthenticationError{Message: "identity provider returned no ID token"})
		return
	}

	session, err := f.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		httputil.LoggerFrom(r).WithError(err).Warn("ID token verification failed")
		httputil.WriteAppError(w, r, &httputil.AuthenticationError{Message: "sign-in failed, please try again"})
		return
	}

	clearCookie(w, stateCookieName, f.secure)
	http.SetCookie(w, &http.Cookie{
		Name:     f.cookieName,
		Value:    rawIDToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})

	httputil.LoggerFrom(r).WithField("user_id", session.User.ID).Info("user signed in")
	http.Redirect(w, r, f.defaultRedirectURL, http.StatusFound)
}

// SignOut clears the session cookie and sends the user to the login page
func (f *SignInFlow) SignOut(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, f.cookieName, f.secure)
	http.Redirect(w, r, f.loginURL, http.StatusSeeOther)
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState returns base64url(32 random bytes)
func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

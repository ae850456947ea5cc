// Package auth provides sessions backed by a hosted OpenID Connect identity provider.
//
// # Overview
//
// The identity provider owns accounts, passwords and sign-up. This package only
// verifies what it issues:
//
//	verifier, provider, err := auth.NewOIDCVerifier(ctx, issuerURL, clientID)
//	resolver := auth.NewSessionResolver(verifier, "tg_session")
//	session, err := resolver.Resolve(r) // bearer token, then cookie
//
// Resolve returns ErrNoSession when the request carries no credentials and an
// error wrapping ErrInvalidSession when they fail verification. The request gate
// treats both as unauthenticated.
//
// # Sign-in
//
// SignInFlow implements the authorization code flow with golang.org/x/oauth2:
//
//	GET  /auth/sign-in   -> Begin: state cookie, redirect to provider
//	GET  /auth/callback  -> Callback: check state, exchange code, verify id_token,
//	                        set session cookie, redirect to the default page
//	POST /auth/sign-out  -> SignOut: clear cookie, redirect to login
//
// Callback failures name the offending field ("code", "state") so the sign-in
// page can show an actionable message.
package auth

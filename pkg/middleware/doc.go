// Package middleware provides the request gate, rate limiting, organization
// context and quota enforcement.
//
// # Overview
//
// Gate: route classification and authentication redirects
//
//	gate := middleware.NewGate(rules, sessionResolver, metrics)
//	handler = gate.Handler(handler)
//	// public | auth | admin | protected, decided by path prefix
//
// RateLimitMiddleware: fixed-window limits per route class
//
//	store := middleware.NewMemoryCounterStore()          // single process
//	store := middleware.NewRedisCounterStore(client, "") // shared by replicas
//	limiter := middleware.NewRateLimitMiddleware(store, limits, rules.Classify, metrics, logger)
//
// OrgContext: load the organization and membership of a route
//
//	api.Use(middleware.OrgContext(orgService, resolver))
//
// QuotaMiddleware: monthly API request quota
//
//	api.Use(quota.TrackAPIRequests)
//
// # Ordering
//
// The gate runs first: it stores the session that the rate limiter keys on.
// OrgContext needs mux route variables, so it is attached with Router.Use on
// the API subrouter. QuotaMiddleware runs after OrgContext.
//
// # Failure Behavior
//
// Counter store and billing errors are logged and the request is allowed.
// A session that fails verification is treated as no session.
//
// # Related Packages
//
//   - pkg/auth: Session resolution
//   - pkg/orgs: Organization mode and owner filters
//   - pkg/billing: Usage quotas
package middleware

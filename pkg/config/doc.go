// Package config provides application configuration management from environment variables.
//
// # Overview
//
// Configuration is loaded once at startup by LoadConfig and passed explicitly to every
// component. Nothing below cmd/ reads the process environment.
//
// An optional YAML file named by TENANTGATE_CONFIG_FILE is applied first; environment
// variables take precedence over it.
//
// # Tenancy
//
//	TENANTGATE_ORGANIZATION_MODE="multi"  # none, single, multi
//
// # Request gate
//
//	TENANTGATE_LOGIN_URL="/auth/sign-in"
//	TENANTGATE_DEFAULT_REDIRECT_URL="/dashboard"
//	TENANTGATE_UNAUTHORIZED_URL="/unauthorized"
//	TENANTGATE_PUBLIC_ROUTES="/,/pricing,/docs"
//	TENANTGATE_AUTH_ROUTES="/auth/sign-in,/auth/sign-up"
//	TENANTGATE_ADMIN_ROUTES="/admin"
//	TENANTGATE_API_ROUTES="/api"
//
// Rate limits per route class (public, auth, protected, admin):
//
//	TENANTGATE_RATE_LIMIT_AUTH="5/15m"
//
// # File format
//
//	mode: multi
//	routes:
//	  public: ["/", "/pricing"]
//	  login_url: /auth/sign-in
//	rate_limits:
//	  auth:
//	    requests: 5
//	    window: 15m
//
// # Backends
//
//	TENANTGATE_DATABASE_URL="postgres://localhost/tenantgate?sslmode=disable"
//	TENANTGATE_REDIS_URL="redis://localhost:6379"   # empty: in-process counters
//	TENANTGATE_S3_BUCKET="tenantgate-files"
//	TENANTGATE_OIDC_ISSUER_URL="https://id.example.com"
//	TENANTGATE_BILLING_WEBHOOK_SECRET="whsec_..."
//
// # Observability
//
//	TENANTGATE_LOG_LEVEL="info"
//	TENANTGATE_LOG_FORMAT="json"
//	TENANTGATE_METRICS_ENABLED="true"
//	TENANTGATE_OTEL_ENABLED="false"
//	TENANTGATE_OTEL_ENDPOINT="localhost:4317"
package config

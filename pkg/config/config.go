package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Tenancy       TenancyConfig
	Routes        RoutesConfig
	RateLimits    map[string]RateLimit
	Database      DatabaseConfig
	Redis         RedisConfig
	Storage       StorageConfig
	OIDC          OIDCConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// TrustProxyHeaders keys anonymous rate limits on X-Forwarded-For and
	// X-Real-IP. Only enable behind a proxy that sets them.
	TrustProxyHeaders bool
}

// TenancyConfig selects the organization mode for the process lifetime
type TenancyConfig struct {
	Mode orgs.Mode
}

// RoutesConfig holds the route prefixes and redirect targets used by the request gate
type RoutesConfig struct {
	Public             []string `yaml:"public"`
	Auth               []string `yaml:"auth"`
	Admin              []string `yaml:"admin"`
	API                []string `yaml:"api"`
	LoginURL           string   `yaml:"login_url"`
	DefaultRedirectURL string   `yaml:"default_redirect_url"`
	UnauthorizedURL    string   `yaml:"unauthorized_url"`
}

// RateLimit is a fixed-window threshold: Requests per Window
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL           string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrateOnBoot bool
}

// RedisConfig holds the rate-limit counter store connection. Empty URL selects the in-process store.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// OIDCConfig holds the hosted identity provider settings
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CookieName   string
	CookieSecure bool
}

// BillingConfig holds payment processor settings
type BillingConfig struct {
	WebhookSecret string
	// UsageRolloverSchedule is a cron expression for resetting monthly usage counters
	UsageRolloverSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
	OTelInsecure    bool
}

// fileConfig is the subset of configuration that may come from a YAML file
type fileConfig struct {
	Mode       string               `yaml:"mode"`
	Routes     *RoutesConfig        `yaml:"routes"`
	RateLimits map[string]fileLimit `yaml:"rate_limits"`
}

type fileLimit struct {
	Requests int    `yaml:"requests"`
	Window   string `yaml:"window"`
}

// DefaultRoutes returns the route conventions of the web application
func DefaultRoutes() RoutesConfig {
	return RoutesConfig{
		Public:             []string{"/", "/pricing", "/docs", "/blog", "/api/health", "/api/webhooks", "/api/auth/sign-up"},
		Auth:               []string{"/auth/sign-in", "/auth/sign-up", "/auth/forgot-password", "/auth/callback"},
		Admin:              []string{"/admin"},
		API:                []string{"/api"},
		LoginURL:           "/auth/sign-in",
		DefaultRedirectURL: "/dashboard",
		UnauthorizedURL:    "/unauthorized",
	}
}

// DefaultRateLimits returns the per route class thresholds
func DefaultRateLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"public":    {Requests: 300, Window: time.Minute},
		"auth":      {Requests: 10, Window: 15 * time.Minute},
		"protected": {Requests: 120, Window: time.Minute},
		"admin":     {Requests: 60, Window: time.Minute},
	}
}

// LoadConfig loads configuration from an optional YAML file (TENANTGATE_CONFIG_FILE)
// and then environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Routes:        DefaultRoutes(),
		RateLimits:    DefaultRateLimits(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Storage:       loadStorageConfig(),
		OIDC:          loadOIDCConfig(),
		Billing:       loadBillingConfig(),
		Observability: loadObservabilityConfig(),
	}

	modeStr := string(orgs.ModeNone)
	if path := getEnv("TENANTGATE_CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fileMode, err := applyFile(cfg, data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if fileMode != "" {
			modeStr = fileMode
		}
	}

	mode, err := orgs.ParseMode(getEnv("TENANTGATE_ORGANIZATION_MODE", modeStr))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg.Tenancy.Mode = mode

	applyRouteEnv(&cfg.Routes)
	if err := applyRateLimitEnv(cfg.RateLimits); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFile overlays YAML settings onto cfg and returns the configured mode, if any
func applyFile(cfg *Config, data []byte) (string, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return "", err
	}

	if fc.Routes != nil {
		r := fc.Routes
		if r.Public != nil {
			cfg.Routes.Public = r.Public
		}
		if r.Auth != nil {
			cfg.Routes.Auth = r.Auth
		}
		if r.Admin != nil {
			cfg.Routes.Admin = r.Admin
		}
		if r.API != nil {
			cfg.Routes.API = r.API
		}
		if r.LoginURL != "" {
			cfg.Routes.LoginURL = r.LoginURL
		}
		if r.DefaultRedirectURL != "" {
			cfg.Routes.DefaultRedirectURL = r.DefaultRedirectURL
		}
		if r.UnauthorizedURL != "" {
			cfg.Routes.UnauthorizedURL = r.UnauthorizedURL
		}
	}

	for class, fl := range fc.RateLimits {
		window, err := time.ParseDuration(fl.Window)
		if err != nil {
			return "", fmt.Errorf("rate_limits.%s.window: %w", class, err)
		}
		cfg.RateLimits[strings.ToLower(class)] = RateLimit{Requests: fl.Requests, Window: window}
	}

	return fc.Mode, nil
}

func applyRouteEnv(r *RoutesConfig) {
	r.LoginURL = getEnv("TENANTGATE_LOGIN_URL", r.LoginURL)
	r.DefaultRedirectURL = getEnv("TENANTGATE_DEFAULT_REDIRECT_URL", r.DefaultRedirectURL)
	r.UnauthorizedURL = getEnv("TENANTGATE_UNAUTHORIZED_URL", r.UnauthorizedURL)
	r.Public = getEnvList("TENANTGATE_PUBLIC_ROUTES", r.Public)
	r.Auth = getEnvList("TENANTGATE_AUTH_ROUTES", r.Auth)
	r.Admin = getEnvList("TENANTGATE_ADMIN_ROUTES", r.Admin)
	r.API = getEnvList("TENANTGATE_API_ROUTES", r.API)
}

// applyRateLimitEnv reads TENANTGATE_RATE_LIMIT_<CLASS>=<requests>/<window>, e.g. "5/15m"
func applyRateLimitEnv(limits map[string]RateLimit) error {
	for _, class := range []string{"public", "auth", "protected", "admin"} {
		key := "TENANTGATE_RATE_LIMIT_" + strings.ToUpper(class)
		value := getEnv(key, "")
		if value == "" {
			continue
		}
		limit, err := ParseRateLimit(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		limits[class] = limit
	}
	return nil
}

// ParseRateLimit parses "<requests>/<window>"
func ParseRateLimit(value string) (RateLimit, error) {
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return RateLimit{}, fmt.Errorf("invalid rate limit %q (want <requests>/<window>)", value)
	}
	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return RateLimit{}, fmt.Errorf("invalid request count %q", parts[0])
	}
	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil {
		return RateLimit{}, fmt.Errorf("invalid window %q", parts[1])
	}
	return RateLimit{Requests: requests, Window: window}, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TENANTGATE_HEALTH_PORT", "9090"),

		TrustProxyHeaders: getEnvBool("TENANTGATE_TRUST_PROXY_HEADERS", false),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:           getEnv("TENANTGATE_DATABASE_URL", ""),
		MaxOpenConns:  getEnvInt("TENANTGATE_DATABASE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:  getEnvInt("TENANTGATE_DATABASE_MAX_IDLE_CONNS", 5),
		MigrateOnBoot: getEnvBool("TENANTGATE_DATABASE_MIGRATE", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("TENANTGATE_REDIS_URL", ""),
		Password: getEnv("TENANTGATE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TENANTGATE_REDIS_DB", 0),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Bucket:       getEnv("TENANTGATE_S3_BUCKET", ""),
		Region:       getEnv("TENANTGATE_S3_REGION", "us-east-1"),
		Endpoint:     getEnv("TENANTGATE_S3_ENDPOINT", ""),
		AccessKey:    getEnv("TENANTGATE_S3_ACCESS_KEY", ""),
		SecretKey:    getEnv("TENANTGATE_S3_SECRET_KEY", ""),
		UsePathStyle: getEnvBool("TENANTGATE_S3_USE_PATH_STYLE", false),
	}
}

func loadOIDCConfig() OIDCConfig {
	return OIDCConfig{
		IssuerURL:    getEnv("TENANTGATE_OIDC_ISSUER_URL", ""),
		ClientID:     getEnv("TENANTGATE_OIDC_CLIENT_ID", ""),
		ClientSecret: getEnv("TENANTGATE_OIDC_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("TENANTGATE_OIDC_REDIRECT_URL", ""),
		CookieName:   getEnv("TENANTGATE_SESSION_COOKIE", "tg_session"),
		CookieSecure: getEnvBool("TENANTGATE_SESSION_COOKIE_SECURE", true),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		WebhookSecret:         getEnv("TENANTGATE_BILLING_WEBHOOK_SECRET", ""),
		UsageRolloverSchedule: getEnv("TENANTGATE_BILLING_ROLLOVER_SCHEDULE", "5 0 1 * *"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:        getEnv("TENANTGATE_LOG_LEVEL", "info"),
		LogFormat:       getEnv("TENANTGATE_LOG_FORMAT", "json"),
		MetricsEnabled:  getEnvBool("TENANTGATE_METRICS_ENABLED", true),
		OTelEnabled:     getEnvBool("TENANTGATE_OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("TENANTGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName: getEnv("TENANTGATE_OTEL_SERVICE_NAME", "tenantgate"),
		OTelInsecure:    getEnvBool("TENANTGATE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if _, err := orgs.ParseMode(string(c.Tenancy.Mode)); err != nil {
		return err
	}

	if c.Routes.LoginURL == "" || c.Routes.DefaultRedirectURL == "" || c.Routes.UnauthorizedURL == "" {
		return fmt.Errorf("login, default redirect, and unauthorized URLs are required")
	}

	for class, limit := range c.RateLimits {
		if limit.Requests <= 0 || limit.Window <= 0 {
			return fmt.Errorf("rate limit for %s must have positive requests and window", class)
		}
	}

	if c.OIDC.IssuerURL != "" && c.OIDC.ClientID == "" {
		return fmt.Errorf("OIDC client ID is required when an issuer is configured")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

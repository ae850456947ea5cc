package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TG_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TG_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TG_BOOL", "1")
	t.Setenv("TG_INT", "42")
	t.Setenv("TG_BAD_INT", "forty")
	t.Setenv("TG_DURATION", "90s")
	t.Setenv("TG_LIST", " /a, ,/b ")

	assert.True(t, getEnvBool("TG_BOOL", false))
	assert.False(t, getEnvBool("TG_BOOL_UNSET", false))
	assert.Equal(t, 42, getEnvInt("TG_INT", 0))
	assert.Equal(t, 7, getEnvInt("TG_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("TG_DURATION", time.Second))
	assert.Equal(t, []string{"/a", "/b"}, getEnvList("TG_LIST", nil))
	assert.Equal(t, []string{"/x"}, getEnvList("TG_LIST_UNSET", []string{"/x"}))
}

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		input   string
		want    RateLimit
		wantErr bool
	}{
		{"5/15m", RateLimit{Requests: 5, Window: 15 * time.Minute}, false},
		{" 1 / 1h ", RateLimit{Requests: 1, Window: time.Hour}, false},
		{"5", RateLimit{}, true},
		{"x/1m", RateLimit{}, true},
		{"5/soon", RateLimit{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRateLimit(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, orgs.ModeNone, cfg.Tenancy.Mode)
	assert.Equal(t, "/auth/sign-in", cfg.Routes.LoginURL)
	assert.Equal(t, "/dashboard", cfg.Routes.DefaultRedirectURL)
	assert.Equal(t, "/unauthorized", cfg.Routes.UnauthorizedURL)
	assert.Equal(t, RateLimit{Requests: 10, Window: 15 * time.Minute}, cfg.RateLimits["auth"])
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Server.TrustProxyHeaders)
	assert.Contains(t, cfg.Routes.Public, "/api/auth/sign-up")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TENANTGATE_ORGANIZATION_MODE", "multi")
	t.Setenv("TENANTGATE_LOGIN_URL", "/login")
	t.Setenv("TENANTGATE_RATE_LIMIT_AUTH", "1/1h")
	t.Setenv("TENANTGATE_ADMIN_ROUTES", "/admin,/ops")
	t.Setenv("TENANTGATE_TRUST_PROXY_HEADERS", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, orgs.ModeMulti, cfg.Tenancy.Mode)
	assert.Equal(t, "/login", cfg.Routes.LoginURL)
	assert.Equal(t, RateLimit{Requests: 1, Window: time.Hour}, cfg.RateLimits["auth"])
	assert.Equal(t, []string{"/admin", "/ops"}, cfg.Routes.Admin)
	assert.True(t, cfg.Server.TrustProxyHeaders)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenantgate.yaml")
	content := `
mode: single
routes:
  public: ["/", "/landing"]
  unauthorized_url: /denied
rate_limits:
  Protected:
    requests: 3
    window: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TENANTGATE_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, orgs.ModeSingle, cfg.Tenancy.Mode)
	assert.Equal(t, []string{"/", "/landing"}, cfg.Routes.Public)
	assert.Equal(t, "/denied", cfg.Routes.UnauthorizedURL)
	assert.Equal(t, "/auth/sign-in", cfg.Routes.LoginURL)
	assert.Equal(t, RateLimit{Requests: 3, Window: time.Hour}, cfg.RateLimits["protected"])

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("TENANTGATE_ORGANIZATION_MODE", "none")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, orgs.ModeNone, cfg.Tenancy.Mode)
	})
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown mode", map[string]string{"TENANTGATE_ORGANIZATION_MODE": "federated"}},
		{"malformed rate limit", map[string]string{"TENANTGATE_RATE_LIMIT_PUBLIC": "lots"}},
		{"missing config file", map[string]string{"TENANTGATE_CONFIG_FILE": "/nonexistent/tenantgate.yaml"}},
		{"same ports", map[string]string{"TENANTGATE_PORT": "9000", "TENANTGATE_HEALTH_PORT": "9000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: "8080", HealthPort: "9090"},
			Tenancy:    TenancyConfig{Mode: orgs.ModeMulti},
			Routes:     DefaultRoutes(),
			RateLimits: DefaultRateLimits(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"bad mode", func(c *Config) { c.Tenancy.Mode = "solo" }, true},
		{"missing login url", func(c *Config) { c.Routes.LoginURL = "" }, true},
		{"zero requests", func(c *Config) { c.RateLimits["auth"] = RateLimit{Window: time.Minute} }, true},
		{"zero window", func(c *Config) { c.RateLimits["auth"] = RateLimit{Requests: 1} }, true},
		{"issuer without client", func(c *Config) { c.OIDC.IssuerURL = "https://id.example.com" }, true},
		{"otel without endpoint", func(c *Config) { c.Observability.OTelEnabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

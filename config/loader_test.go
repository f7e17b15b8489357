package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// --- defaults ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "X-Request-Id", cfg.Server.RequestIDHeader)
	assert.Equal(t, "X-Client-Id", cfg.Server.ClientIDHeader)
	assert.Equal(t, "https://api.openai.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 3, cfg.Upstream.MaxAttempts)
	assert.Equal(t, 400*time.Millisecond, cfg.Upstream.BackoffBase)
	assert.Equal(t, 100, cfg.RateLimit.RPM)
	assert.False(t, cfg.Guardrails.EnableDelegatedRedactor)
	assert.True(t, cfg.Pipeline.BlockOnInjection)
	assert.Equal(t, "gpt-4o-mini", cfg.Pipeline.DefaultModel)
	assert.NoError(t, cfg.Validate())
}

// --- YAML file ---

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9090
upstream:
  base_url: "https://llm.internal"
  max_attempts: 5
rate_limit:
  addr: "redis.internal:6379"
  rpm: 60
guardrails:
  enable_delegated_redactor: true
  delegated:
    base_url: "http://presidio:8080"
pipeline:
  block_on_injection: false
  default_model: "gpt-4o"
log:
  level: debug
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "https://llm.internal", cfg.Upstream.BaseURL)
	assert.Equal(t, 5, cfg.Upstream.MaxAttempts)
	assert.Equal(t, "redis.internal:6379", cfg.RateLimit.Addr)
	assert.Equal(t, 60, cfg.RateLimit.RPM)
	assert.True(t, cfg.Guardrails.EnableDelegatedRedactor)
	assert.Equal(t, "http://presidio:8080", cfg.Guardrails.Delegated.BaseURL)
	assert.False(t, cfg.Pipeline.BlockOnInjection)
	assert.Equal(t, "gpt-4o", cfg.Pipeline.DefaultModel)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched values keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoader_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- env overrides ---

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9090\n")

	t.Setenv("AEGISGATE_SERVER_HTTP_PORT", "7070")
	t.Setenv("AEGISGATE_UPSTREAM_BASE_URL", "https://env.example")
	t.Setenv("AEGISGATE_UPSTREAM_API_KEY", "sk-env")
	t.Setenv("AEGISGATE_UPSTREAM_TIMEOUT", "45s")
	t.Setenv("AEGISGATE_RATE_LIMIT_RPM", "30")
	t.Setenv("AEGISGATE_PIPELINE_BLOCK_ON_INJECTION", "false")
	t.Setenv("AEGISGATE_LOG_OUTPUT_PATHS", "stdout, /var/log/aegisgate.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "https://env.example", cfg.Upstream.BaseURL)
	assert.Equal(t, "sk-env", cfg.Upstream.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 30, cfg.RateLimit.RPM)
	assert.False(t, cfg.Pipeline.BlockOnInjection)
	assert.Equal(t, []string{"stdout", "/var/log/aegisgate.log"}, cfg.Log.OutputPaths)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("GW_SERVER_HTTP_PORT", "6060")

	cfg, err := NewLoader().WithEnvPrefix("GW").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("AEGISGATE_SERVER_HTTP_PORT", "not-a-number")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

// --- Validate ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"port too high", func(c *Config) { c.Server.HTTPPort = 70000 }},
		{"missing upstream url", func(c *Config) { c.Upstream.BaseURL = "" }},
		{"bad max attempts", func(c *Config) { c.Upstream.MaxAttempts = 0 }},
		{"bad rpm", func(c *Config) { c.RateLimit.RPM = 0 }},
		{"delegated enabled without url", func(c *Config) {
			c.Guardrails.EnableDelegatedRedactor = true
			c.Guardrails.Delegated.BaseURL = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

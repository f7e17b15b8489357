package config

import (
	"time"

	"github.com/aegisgate/aegisgate/gateway"
	"github.com/aegisgate/aegisgate/guardrails"
	"github.com/aegisgate/aegisgate/ratelimit"
	"github.com/aegisgate/aegisgate/upstream"
)

// DefaultConfig returns the production defaults. Every value can be
// overridden by YAML or environment variables.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestIDHeader: "X-Request-Id",
			ClientIDHeader:  "X-Client-Id",
		},
		Upstream:  upstream.DefaultConfig(),
		RateLimit: ratelimit.DefaultConfig(),
		Guardrails: guardrails.Config{
			EnableDelegatedRedactor: false,
			Delegated: guardrails.DelegatedConfig{
				Timeout: 10 * time.Second,
			},
		},
		Pipeline: gateway.Config{
			BlockOnInjection: true,
			DefaultModel:     "gpt-4o-mini",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
	}
}

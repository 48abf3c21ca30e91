// Package config provides configuration for the replay service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the replay service configuration.
type Config struct {
	// Server settings
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Internal JSON-RPC ingestion; zero disables it
	RPCPort int `env:"RPC_PORT" envDefault:"0"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:replay.db?cache=shared&mode=rwc"`

	// Access policy; empty uses policy.DefaultPolicy
	AccessPolicyFile string `env:"ACCESS_POLICY_FILE"`

	// Views; zero never expires idle views
	ViewIdleMs int `env:"VIEW_IDLE_TIMEOUT_MS" envDefault:"0"`

	// WebSocket settings
	PingIntervalMs int   `env:"WS_PING_INTERVAL_MS" envDefault:"30000"`
	WriteTimeoutMs int   `env:"WS_WRITE_TIMEOUT_MS" envDefault:"10000"`
	ReadTimeoutMs  int   `env:"WS_READ_TIMEOUT_MS" envDefault:"60000"`
	MaxMessageSize int64 `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Derived from the millisecond settings by Load.
	ViewIdleTimeout time.Duration
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ViewIdleTimeout = time.Duration(cfg.ViewIdleMs) * time.Millisecond
	cfg.PingInterval = time.Duration(cfg.PingIntervalMs) * time.Millisecond
	cfg.WriteTimeout = time.Duration(cfg.WriteTimeoutMs) * time.Millisecond
	cfg.ReadTimeout = time.Duration(cfg.ReadTimeoutMs) * time.Millisecond
	return cfg, nil
}

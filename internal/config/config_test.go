package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 0, cfg.RPCPort)
	assert.Equal(t, "file:replay.db?cache=shared&mode=rwc", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, time.Minute, cfg.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.ViewIdleTimeout)
	assert.Equal(t, int64(65536), cfg.MaxMessageSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("RPC_PORT", "9091")
	t.Setenv("DATABASE_URL", ":memory:")
	t.Setenv("VIEW_IDLE_TIMEOUT_MS", "1500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.RPCPort)
	assert.Equal(t, ":memory:", cfg.DatabaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.ViewIdleTimeout)
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1, cfg.Worker.MaxWorkers)
	assert.Equal(t, 100, cfg.Worker.QueueSize)
	assert.Equal(t, 50, cfg.Worker.Threshold)
	assert.Equal(t, 120, cfg.B3.PageSize)
	assert.Equal(t, "pt-br", cfg.B3.Language)
	assert.Equal(t, 1.5, cfg.Estimate.SafetyFactor)
	assert.Equal(t, 30, cfg.Estimate.WindowDays)
	assert.Contains(t, cfg.HTTP.InsecureHosts, "bvmf.bmfbovespa.com.br")
	assert.NotEmpty(t, cfg.HTTP.UserAgents)
	assert.NotEmpty(t, cfg.HTTP.Referers)
	assert.NotEmpty(t, cfg.HTTP.Languages)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("B3_WORKER_MAX_WORKERS", "8")
	t.Setenv("B3_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Worker.MaxWorkers)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}

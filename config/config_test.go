package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/infermesh/engine"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Scheduler.TaskRetry.MaxRetries)
	assert.Equal(t, 500, cfg.Scheduler.TaskRetry.InitialDelayMs)
	assert.Equal(t, 3, cfg.Engine.PoolSize)
	assert.Equal(t, 10, cfg.Guardrail.RateLimit)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
engine:
  model_id: tiny-llama
  backend: cpu
  pool_size: 2
scheduler:
  task_timeout_ms: 5000
cache:
  enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, "tiny-llama", cfg.Engine.ModelID)
	assert.Equal(t, "cpu", cfg.Engine.Backend)
	assert.Equal(t, 2, cfg.Engine.PoolSize)
	assert.Equal(t, 5000, cfg.Scheduler.TaskTimeoutMs)
	assert.False(t, cfg.Cache.Enabled)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Guardrail.RateLimit)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad backend", "engine:\n  backend: quantum\n"},
		{"zero pool", "engine:\n  pool_size: 0\n"},
		{"zero timeout", "scheduler:\n  task_timeout_ms: 0\n"},
		{"zero rate limit", "guardrail:\n  rate_limit: 0\n"},
		{"not yaml", ": definitely not yaml ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  model_id: tiny\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", cfg.Engine.ModelID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRetryConfig_ToEngine(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:        2,
		InitialDelayMs:    500,
		MaxDelayMs:        10000,
		BackoffMultiplier: 2.0,
		RetryableErrors:   []string{"timeout"},
	}
	ec := rc.ToEngine()
	assert.Equal(t, engine.RetryConfig{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableErrors:   []string{"timeout"},
	}, ec)
}

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
	path := filepath.Join(t.TempDir(), "maestro.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
conductor:
  default_instrument: research
  max_spawn_depth: 2
registry:
  heartbeat_timeout: 45s
termination:
  confidence_threshold: 0.75
delegation:
  timeout: 10s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "research", cfg.Conductor.DefaultInstrument)
	assert.Equal(t, 2, cfg.Conductor.MaxSpawnDepth)
	assert.Equal(t, 45*time.Second, cfg.HeartbeatTimeout())
	assert.Equal(t, 0.75, cfg.Termination.ConfidenceThreshold)
	assert.Equal(t, 10*time.Second, cfg.DelegationTimeout())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields fall back to defaults.
	assert.Equal(t, 0.05, cfg.Termination.ConfidenceDeltaThreshold)
	assert.Equal(t, 5, cfg.Termination.MaxIterations)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
registry:
  heartbeat_timeout: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat_timeout")
}

func TestLoad_InvalidThreshold(t *testing.T) {
	path := writeConfig(t, `
termination:
  confidence_threshold: 1.5
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence_threshold")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault("does-not-exist.yaml")
	assert.Equal(t, 3, cfg.Conductor.MaxSpawnDepth)
	assert.Equal(t, 90*time.Second, cfg.HeartbeatTimeout())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MAESTRO_LOG_LEVEL", "warn")

	path := writeConfig(t, `
logging:
  level: info
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

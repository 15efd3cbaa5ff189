package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 10, cfg.Async.Max)
	assert.Equal(t, 2, cfg.Async.RetryTime)
	assert.Equal(t, 10*time.Second, cfg.Async.Timeout)
	assert.Equal(t, 16*time.Millisecond, cfg.Idle.SliceSize)
}

func TestLoad_MissingFileIsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idletasks.yaml")
	yamlData := `async:
  max: 4
  timeout: 2s
idle:
  slice_size: 8ms
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Async.Max)
	assert.Equal(t, 2, cfg.Async.RetryTime, "unset keys keep their defaults")
	assert.Equal(t, 2*time.Second, cfg.Async.Timeout)
	assert.Equal(t, 8*time.Millisecond, cfg.Idle.SliceSize)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("async: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idletasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("async:\n  max: 4\n"), 0o644))

	t.Setenv(envMax, "7")
	t.Setenv(envTimeout, "250ms")
	t.Setenv(envMetricsAddr, "127.0.0.1:9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Async.Max)
	assert.Equal(t, 250*time.Millisecond, cfg.Async.Timeout)
	assert.Equal(t, "127.0.0.1:9999", cfg.MetricsAddr)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv(envRetryTime, "many")
	_, err := Load("")
	assert.ErrorContains(t, err, envRetryTime)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Async.Max = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Idle.IdlePeriod = 0
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, logrus.WarnLevel, cfg.NewLogger().GetLevel())
}

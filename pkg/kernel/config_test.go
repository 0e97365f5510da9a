package kernel

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/chazu/kerf/pkg/mesh"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, mesh.DefaultEpsilon, cfg.Epsilon)
	assert.True(t, cfg.Parallel)
	assert.True(t, cfg.Incremental)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kerf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "epsilon: 0.001\nparallel: false\nlog:\n  level: debug\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.001, cfg.Epsilon)
	assert.False(t, cfg.Parallel)
	assert.True(t, cfg.Incremental, "missing keys keep their defaults")
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigZeroFieldsFallBack(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "epsilon: 0\nworkers: 0\nlog:\n  level: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, mesh.DefaultEpsilon, cfg.Epsilon)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "epsilon: [1, 2\n"))
	assert.Error(t, err, "malformed YAML")

	_, err = LoadConfig(writeConfig(t, "workers: -2\n"))
	assert.Error(t, err, "negative workers")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative epsilon", func(c *Config) { c.Epsilon = -1e-6 }},
		{"zero epsilon", func(c *Config) { c.Epsilon = 0 }},
		{"NaN epsilon", func(c *Config) { c.Epsilon = math.NaN() }},
		{"infinite epsilon", func(c *Config) { c.Epsilon = math.Inf(1) }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("loud")
	assert.Error(t, err)
}

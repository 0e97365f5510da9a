package kernel

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/chazu/kerf/pkg/mesh"
)

// Config holds the kernel settings.
type Config struct {
	// Epsilon is the geometric tolerance shared by every predicate.
	Epsilon float64 `yaml:"epsilon"`
	// Parallel evaluates sibling subtrees concurrently.
	Parallel bool `yaml:"parallel"`
	// Incremental caches identified nodes between renders.
	Incremental bool `yaml:"incremental"`
	// Workers bounds the extra goroutines used by parallel evaluation.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int `yaml:"workers"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Epsilon:     mesh.DefaultEpsilon,
		Parallel:    true,
		Incremental: true,
		Workers:     runtime.GOMAXPROCS(0),
		Log:         LogConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML configuration file. Keys missing from the file
// keep their default values; a missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("kernel: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("kernel: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults fills zero numeric and string fields.
func (c *Config) applyDefaults() {
	if c.Epsilon == 0 {
		c.Epsilon = mesh.DefaultEpsilon
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if !(c.Epsilon > 0) || math.IsInf(c.Epsilon, 0) {
		return fmt.Errorf("kernel: epsilon must be positive, got %g", c.Epsilon)
	}
	if c.Workers < 0 {
		return fmt.Errorf("kernel: workers must not be negative, got %d", c.Workers)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("kernel: log level: %w", err)
	}
	return nil
}

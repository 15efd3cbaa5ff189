// Package config loads settings for the idletasks command: defaults, then an
// optional YAML file, then IDLETASKS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/idle"
	"github.com/Swind/go-idle-tasks/runner"
)

const (
	defaultMetricsAddr = ":9090"

	envMax         = "IDLETASKS_MAX"
	envRetryTime   = "IDLETASKS_RETRY_TIME"
	envTimeout     = "IDLETASKS_TIMEOUT"
	envSliceSize   = "IDLETASKS_SLICE_SIZE"
	envIdlePeriod  = "IDLETASKS_IDLE_PERIOD"
	envLogLevel    = "IDLETASKS_LOG_LEVEL"
	envMetricsAddr = "IDLETASKS_METRICS_ADDR"
)

// AsyncConfig holds RunAsyncTasks defaults.
type AsyncConfig struct {
	Max       int           `yaml:"max"`
	RetryTime int           `yaml:"retry_time"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IdleConfig holds idle slice settings.
type IdleConfig struct {
	// SliceSize is the budget of the timer fallback.
	SliceSize time.Duration `yaml:"slice_size"`

	// IdlePeriod caps one idle period of the event loop.
	IdlePeriod time.Duration `yaml:"idle_period"`
}

// Config models the idletasks YAML file.
type Config struct {
	Async       AsyncConfig `yaml:"async"`
	Idle        IdleConfig  `yaml:"idle"`
	LogLevel    string      `yaml:"log_level"`
	MetricsAddr string      `yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Async: AsyncConfig{
			Max:       runner.DefaultMax,
			RetryTime: runner.DefaultRetryTime,
			Timeout:   runner.DefaultTimeout,
		},
		Idle: IdleConfig{
			SliceSize:  idle.DefaultSliceSize,
			IdlePeriod: core.DefaultIdlePeriod,
		},
		LogLevel:    "info",
		MetricsAddr: defaultMetricsAddr,
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path or a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(envMax); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envMax, err)
		}
		c.Async.Max = n
	}
	if v := getenv(envRetryTime); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envRetryTime, err)
		}
		c.Async.RetryTime = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{envTimeout, &c.Async.Timeout},
		{envSliceSize, &c.Idle.SliceSize},
		{envIdlePeriod, &c.Idle.IdlePeriod},
	} {
		if v := getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}
	if v := getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(envMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	return nil
}

// Validate rejects values the runners cannot work with.
func (c Config) Validate() error {
	if c.Async.Max < 1 {
		return fmt.Errorf("async.max must be at least 1, got %d", c.Async.Max)
	}
	if c.Async.RetryTime < 1 {
		return fmt.Errorf("async.retry_time must be at least 1, got %d", c.Async.RetryTime)
	}
	if c.Async.Timeout <= 0 {
		return fmt.Errorf("async.timeout must be positive, got %s", c.Async.Timeout)
	}
	if c.Idle.SliceSize <= 0 || c.Idle.IdlePeriod <= 0 {
		return errors.New("idle.slice_size and idle.idle_period must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel for logrus.
func (c Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger creates a logrus logger writing text at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	l := logrus.New()
	level, _ := c.Level()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Package config loads the engine settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/w-h-a/caus/internal/causerr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig holds the discovery defaults. A request's own max_lag and
// pc_alpha take precedence when set.
type EngineConfig struct {
	MaxLag              int           `yaml:"max_lag"`
	PcAlpha             float64       `yaml:"pc_alpha"`
	MaxConditioningSize int           `yaml:"max_conditioning_size"`
	MaxCombinations     int           `yaml:"max_combinations"`
	MaxTests            int64         `yaml:"max_tests"`
	Workers             int           `yaml:"workers"`
	Timeout             time.Duration `yaml:"timeout"`
	Contemporaneous     bool          `yaml:"contemporaneous"`
	AutoAlphas          []float64     `yaml:"auto_alphas"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Listen address of the /metrics endpoint, empty disables it
	Addr string `yaml:"addr"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxLag:              3,
			MaxConditioningSize: 6,
			MaxTests:            250000,
			Timeout:             5 * time.Minute,
			AutoAlphas:          []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, causerr.Wrap(causerr.KindInvalidConfiguration, "config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	e := c.Engine
	if e.MaxLag < 0 {
		return causerr.InvalidConfiguration("config", "engine.max_lag must be >= 0, got %d", e.MaxLag)
	}
	if e.PcAlpha < 0 || e.PcAlpha > 1 {
		return causerr.InvalidConfiguration("config", "engine.pc_alpha must be 0 (auto) or in (0,1], got %v", e.PcAlpha)
	}
	if e.MaxConditioningSize < 0 {
		return causerr.InvalidConfiguration("config", "engine.max_conditioning_size must be >= 0, got %d", e.MaxConditioningSize)
	}
	if e.MaxCombinations < 0 {
		return causerr.InvalidConfiguration("config", "engine.max_combinations must be >= 0, got %d", e.MaxCombinations)
	}
	if e.MaxTests < 0 {
		return causerr.InvalidConfiguration("config", "engine.max_tests must be >= 0, got %d", e.MaxTests)
	}
	if e.Workers < 0 {
		return causerr.InvalidConfiguration("config", "engine.workers must be >= 0, got %d", e.Workers)
	}
	if e.Timeout < 0 {
		return causerr.InvalidConfiguration("config", "engine.timeout must be >= 0, got %s", e.Timeout)
	}
	for _, a := range e.AutoAlphas {
		if a <= 0 || a > 1 {
			return causerr.InvalidConfiguration("config", "engine.auto_alphas: %v outside (0,1]", a)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return causerr.InvalidConfiguration("config", "log.format must be text or json, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return causerr.InvalidConfiguration("config", "log.level %q is not a level", c.Log.Level)
	}

	return nil
}

package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables that steer loading itself.
const (
	EnvPrefix  = "AREARISK_"
	EnvConfig  = "AREARISK_CONFIG"
	EnvEnvFile = "AREARISK_ENV_FILE"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if AREARISK_CONFIG is set
//  3. env (prefix AREARISK_)
//
// A .env file (or AREARISK_ENV_FILE) is read into the process environment
// first. Variables already set are not overwritten.
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %v", ErrLoadConfig, path, err)
		}
	}

	// AREARISK_QUEUE_SIZE -> queue_size. Keys are flat, so underscores stay.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv(EnvEnvFile)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
	}
	return nil
}

// Validate checks run-wide settings. Method-specific prior values are
// checked when the prior is derived.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return invalid("log_format %q", c.LogFormat)
	}
	switch c.PriorMethod {
	case PriorMethodAggregate, PriorMethodMeanStdDev, PriorMethodExplicit:
	default:
		return invalid("prior_method %q", c.PriorMethod)
	}
	if c.WorkerCount < 1 {
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize < 1 {
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	}
	if !(c.LowerTail > 0 && c.LowerTail < c.UpperTail && c.UpperTail < 1) {
		return invalid("need 0 < lower_tail < upper_tail < 1, got %g and %g", c.LowerTail, c.UpperTail)
	}
	if c.MaxIterations < 1 {
		return invalid("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if !(c.Tolerance > 0) {
		return invalid("tolerance must be positive, got %g", c.Tolerance)
	}
	if !(c.ScaleFactor > 0) {
		return invalid("scale_factor must be positive, got %g", c.ScaleFactor)
	}
	if c.TopN < 0 {
		return invalid("top_n must not be negative, got %d", c.TopN)
	}
	return nil
}

package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

const (
	envPrefix  = "CALLSCORE_"
	envFile    = "CALLSCORE_ENV_FILE"
	configFile = "CALLSCORE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CALLSCORE_CONFIG is set
//  3. env (prefix CALLSCORE_, "__" separates nested keys)
//
// A .env file (or CALLSCORE_ENV_FILE) is read into the environment first;
// variables already set win.
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(configFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrLoadConfig, path, err)
		}
	}

	// CALLSCORE_ORACLE__BASE_URL -> oracle.base_url
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Oracle.Driver == OracleHTTP && c.Oracle.BaseURL == "" {
		return fmt.Errorf("%w: oracle.base_url is required for the http driver", ErrInvalidConfig)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("%w: scoring: %w", ErrInvalidConfig, err)
	}
	if _, err := cron.ParseStandard(c.Evaluator.Schedule); err != nil {
		return fmt.Errorf("%w: evaluator.schedule %q: %w", ErrInvalidConfig, c.Evaluator.Schedule, err)
	}
	return nil
}

func loadDotEnv() error {
	path := os.Getenv(envFile)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("%w: env file %s: %w", ErrLoadConfig, path, err)
}

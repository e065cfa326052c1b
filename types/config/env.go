package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name read by LoadFromEnv.
const EnvPrefix = "TALKVAULT_"

// LoadFromEnv builds a Config from TALKVAULT_* environment variables.
// The given .env files (or ./.env when none are given) are loaded first; a missing file is not an error
// and variables already present in the environment win over file values.
func LoadFromEnv(paths ...string) (*Config, error) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := defaultConfig("")
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.PublishEvents {
		cfg.MQDriver = RabbitMQ
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

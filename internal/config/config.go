// Package config loads and validates the daemon's static configuration,
// grounded on the teacher's music/config.go: a viper-backed Config struct
// validated with go-playground/validator before anything wires up.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// StoreConfig selects and parameterizes the persistent store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=sqlite postgres"`
	DSN     string `mapstructure:"dsn" validate:"required"`
}

// HSMConfig selects the HSM backend.
type HSMConfig struct {
	Backend      string   `mapstructure:"backend" validate:"required,oneof=mock"`
	Repositories []string `mapstructure:"repositories" validate:"required,min=1"`
}

// SchedulerConfig sizes the worker pool.
type SchedulerConfig struct {
	Workers int `mapstructure:"workers" validate:"required,min=1"`
}

// Config is the complete, validated daemon configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	HSM       HSMConfig       `mapstructure:"hsm" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
}

var validate = validator.New()

// Load reads configuration from path (if non-empty) and the environment,
// following the teacher's LoadMusicConfig precedence (explicit file, then
// environment variables prefixed ENFORCER_), then validates the result —
// the teacher's ValidateConfig safemode double-validation pattern, applied
// once here since this config has no separate safemode profile.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENFORCER")
	v.AutomaticEnv()

	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("hsm.backend", "mock")
	v.SetDefault("store.backend", "sqlite")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// fabula.yaml file in the working directory. Environment variables take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.log_level", "info")
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.base_delay_ms", 1000)
	v.SetDefault("executor.max_delay_ms", 30000)
	v.SetDefault("executor.backoff_multiplier", 2.0)
	v.SetDefault("executor.timeout_ms", 60000)
	v.SetDefault("executor.max_concurrent", 3)

	// Read from an optional config file in the working directory
	v.SetConfigName("fabula")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is a real error
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Configure environment variables with the FABULA_ prefix
	v.SetEnvPrefix("FABULA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables so they override file values
	// even for keys absent from the config file
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"server.log_level", "FABULA_SERVER_LOG_LEVEL"},
		{"executor.max_retries", "FABULA_EXECUTOR_MAX_RETRIES"},
		{"executor.base_delay_ms", "FABULA_EXECUTOR_BASE_DELAY_MS"},
		{"executor.max_delay_ms", "FABULA_EXECUTOR_MAX_DELAY_MS"},
		{"executor.backoff_multiplier", "FABULA_EXECUTOR_BACKOFF_MULTIPLIER"},
		{"executor.timeout_ms", "FABULA_EXECUTOR_TIMEOUT_MS"},
		{"executor.max_concurrent", "FABULA_EXECUTOR_MAX_CONCURRENT"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

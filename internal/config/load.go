package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml in the working
// directory and from environment variables with the PULLQ_ prefix.
// Environment variables take precedence over values from the config file.
// Returns a populated Config struct or an error if loading or validation
// fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults keep every key registered with viper so AutomaticEnv can
	// resolve overrides for all of them.
	v.SetDefault("scheduler.max_concurrent", 2)
	v.SetDefault("scheduler.pause_retry_delay", "500ms")
	v.SetDefault("scheduler.poll_interval", "250ms")
	v.SetDefault("worker.download_dir", "downloads")
	v.SetDefault("worker.fetch_timeout", "30m")
	v.SetDefault("worker.default_format", "flac")
	v.SetDefault("store.path", "status.json")
	v.SetDefault("retention.days", 7)
	v.SetDefault("retention.schedule", "@daily")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything can come from
		// defaults and the environment.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PULLQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

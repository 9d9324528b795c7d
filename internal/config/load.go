package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variable overrides, so that
// e.g. COACHMATE_DATABASE_URL maps to the database.url key.
const envPrefix = "COACHMATE"

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over values from the
// config file, which in turn take precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory. A missing file is not
	// an error; a malformed one is.
	v.SetConfigName("testdb")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks a Config against the struct validation tags. It is split
// out from Load so programmatically built configs get the same checks.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// setDefaults registers a default for every known key. Registering the full
// key set also makes AutomaticEnv pick up variables for keys that appear in
// no config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.bootstrap_name", "postgres")
	v.SetDefault("database.migrations_dir", "")
	v.SetDefault("database.migrations_table", "schema_migrations")
	v.SetDefault("database.migration_timeout", "60s")

	v.SetDefault("pool.max_connections", 10)
	v.SetDefault("pool.idle_timeout", "30s")
	v.SetDefault("pool.connect_timeout", "10s")
	v.SetDefault("pool.sweep_interval", "30s")

	v.SetDefault("log.level", "info")

	v.SetDefault("ops.addr", "127.0.0.1:8089")
}

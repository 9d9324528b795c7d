package config

import "time"

// Config holds all configuration for the test-database tooling.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Pool     PoolConfig     `mapstructure:"pool" validate:"required"`
	Log      LogConfig      `mapstructure:"log" validate:"required"`
	Ops      OpsConfig      `mapstructure:"ops"`
}

// DatabaseConfig contains the master connection string and the settings
// used when provisioning databases from it.
type DatabaseConfig struct {
	// URL is the master connection string. Only its scheme, credentials and
	// host are used when building per-suite database URLs; any path or query
	// component is stripped.
	URL string `mapstructure:"url" validate:"required,url"`

	// BootstrapName is the maintenance database administrative connections
	// attach to when creating or dropping other databases.
	BootstrapName string `mapstructure:"bootstrap_name" validate:"required"`

	// MigrationsDir is the directory holding goose SQL migrations. When
	// empty, freshly provisioned databases are handed out unmigrated.
	MigrationsDir string `mapstructure:"migrations_dir"`

	// MigrationsTable is the table goose records applied versions in.
	MigrationsTable string `mapstructure:"migrations_table" validate:"required"`

	// MigrationTimeout bounds a single migration run.
	MigrationTimeout time.Duration `mapstructure:"migration_timeout" validate:"required"`
}

// PoolConfig contains the connection pool sizing and timing settings.
// These are per-run defaults, not baked-in constants: the pool accepts
// partial overrides at runtime.
type PoolConfig struct {
	// MaxConnections bounds how many live connections the pool holds at once.
	MaxConnections int `mapstructure:"max_connections" validate:"required,gt=0"`

	// IdleTimeout is how long a connection may go unused before the sweeper
	// evicts it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"required"`

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"required"`

	// SweepInterval is how often the background idle sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// OpsConfig contains settings for the optional ops HTTP surface served by
// testdbctl.
type OpsConfig struct {
	// Addr is the listen address for the ops API.
	Addr string `mapstructure:"addr" validate:"required"`
}

// Package config handles loading, validation, and access to application
// configuration from environment variables and optional config files.
//
// Configuration is resolved in precedence order: environment variables
// (prefixed COACHMATE_, nested keys joined with underscores, e.g.
// COACHMATE_DATABASE_URL), then an optional testdb.yaml file in the working
// directory, then built-in defaults. The resulting Config is validated
// before use; callers receive either a fully valid Config or an error.
package config

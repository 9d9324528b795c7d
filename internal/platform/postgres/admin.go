package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	// Import pgx driver for database/sql
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Admin is an administrative connection to a PostgreSQL server, attached to
// the bootstrap database (usually "postgres"). CREATE DATABASE and
// DROP DATABASE cannot run against the database they target, so every
// lifecycle operation goes through this handle instead of a test database
// connection.
type Admin struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenAdmin opens and verifies an administrative connection to the server at
// baseURL, connected to the named bootstrap database. The initial ping is
// bounded by connectTimeout; on failure the handle is closed before the
// error is returned.
// If logger is nil, a default logger will be used.
func OpenAdmin(
	ctx context.Context,
	baseURL string,
	bootstrapName string,
	connectTimeout time.Duration,
	logger *slog.Logger,
) (*Admin, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	log := logger.With(slog.String("component", "pg_admin"))

	db, err := sql.Open("pgx", adminDSN(baseURL, bootstrapName))
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}

	// Admin statements are rare and short; keep the footprint small.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn("failed to close admin connection after ping failure",
				slog.String("error", closeErr.Error()))
		}
		return nil, fmt.Errorf("failed to ping bootstrap database %q: %w", bootstrapName, err)
	}

	log.Debug("admin connection established",
		slog.String("bootstrap_database", bootstrapName))

	return &Admin{db: db, logger: log}, nil
}

// adminDSN joins a server-level URL (no database path) with the bootstrap
// database name.
func adminDSN(baseURL, bootstrapName string) string {
	return baseURL + "/" + bootstrapName
}

// CreateDatabase issues CREATE DATABASE for the given name. The caller is
// responsible for deciding whether an already-existing database is an error;
// use IsDuplicateDatabase on the returned error to tell.
func (a *Admin) CreateDatabase(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{name}.Sanitize())
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create database %q: %w", name, err)
	}
	return nil
}

// DropDatabase terminates any sessions still connected to the named database
// and then drops it. Dropping a database that does not exist is not an
// error.
func (a *Admin) DropDatabase(ctx context.Context, name string) error {
	// Active sessions make DROP DATABASE fail with object_in_use, so evict
	// them first. Termination failures are not fatal; the drop below reports
	// the authoritative outcome.
	const terminate = `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`
	if _, err := a.db.ExecContext(ctx, terminate, name); err != nil {
		a.logger.Debug("failed to terminate backends before drop",
			slog.String("database", name),
			slog.String("error", err.Error()))
	}

	drop := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{name}.Sanitize())
	_, err := a.db.ExecContext(ctx, drop)
	if IsObjectInUse(err) {
		// A session slipped in between termination and the drop. Give the
		// terminations a moment to land, then try once more.
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
		_, err = a.db.ExecContext(ctx, drop)
	}
	if err != nil {
		return fmt.Errorf("failed to drop database %q: %w", name, err)
	}
	return nil
}

// DatabaseExists reports whether a database with the given name exists on
// the server.
func (a *Admin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existence of database %q: %w", name, err)
	}
	return exists, nil
}

// ListDatabases returns the names of all databases matching the given
// SQL LIKE pattern, in sorted order.
func (a *Admin) ListDatabases(ctx context.Context, pattern string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT datname FROM pg_database WHERE datname LIKE $1 ORDER BY datname", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate databases: %w", err)
	}
	return names, nil
}

// Close releases the administrative connection.
func (a *Admin) Close() error {
	return a.db.Close()
}

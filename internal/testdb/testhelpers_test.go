package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachmate/coachmate-api/internal/config"
	"github.com/coachmate/coachmate-api/internal/platform/postgres"
)

// findMigrationsDir walks up from the working directory to the module root
// and returns the bundled migrations directory.
func findMigrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "internal", "platform", "postgres", "migrations")
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, parent, dir, "module root with go.mod not found")
		dir = parent
	}
}

// integrationConfig skips the test unless an integration database is
// available, then returns a config pointing at it.
func integrationConfig(t *testing.T) *config.Config {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL environment variable not set, skipping integration test")
	}

	return &config.Config{
		Database: config.DatabaseConfig{
			URL:              dbURL,
			BootstrapName:    "postgres",
			MigrationsDir:    findMigrationsDir(t),
			MigrationsTable:  "schema_migrations",
			MigrationTimeout: 60 * time.Second,
		},
		Pool: config.PoolConfig{
			MaxConnections: 5,
			IdleTimeout:    time.Minute,
			ConnectTimeout: 10 * time.Second,
			SweepInterval:  time.Minute,
		},
		Log: config.LogConfig{Level: "info"},
	}
}

// newIntegrationManager builds a fully wired Manager against the
// integration database and shuts it down when the test finishes.
func newIntegrationManager(t *testing.T) *Manager {
	t.Helper()

	cfg := integrationConfig(t)
	pool := NewConnPool(cfg.Pool, nil)
	m, err := NewManager(context.Background(), cfg, pool, NewCleaner(nil), nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

// newBareManager builds a Manager with only in-memory state, for unit tests
// of the registry bookkeeping. It has no admin connection, so tests must
// stay on paths that perform no database I/O.
func newBareManager(t *testing.T) *Manager {
	t.Helper()

	pool := NewConnPool(config.PoolConfig{}, nil)
	t.Cleanup(pool.Close)
	return &Manager{
		suites:  make(map[string]*suiteEntry),
		scopes:  make(map[string]*Scope),
		baseURL: "postgres://postgres@localhost:5432",
		pool:    pool,
		cleaner: NewCleaner(nil),
		logger:  slog.Default(),
	}
}

// readyEntry builds a settled suite entry around db.
func readyEntry(db *TestDatabase) *suiteEntry {
	entry := &suiteEntry{ready: make(chan struct{}), db: db}
	close(entry.ready)
	return entry
}

// newMigratedDatabase creates a throwaway database with the full schema
// applied and returns a direct connection to it. The database is dropped
// when the test finishes.
func newMigratedDatabase(t *testing.T) *sql.DB {
	t.Helper()

	cfg := integrationConfig(t)
	ctx := context.Background()

	baseURL, err := ExtractBaseURL(cfg.Database.URL)
	require.NoError(t, err)
	admin, err := postgres.OpenAdmin(ctx, baseURL, cfg.Database.BootstrapName, cfg.Pool.ConnectTimeout, nil)
	require.NoError(t, err)

	name := GenerateDatabaseName("schema-helper", TypeUnit)
	require.NoError(t, admin.CreateDatabase(ctx, name))

	url := DatabaseURL(baseURL, name)
	require.NoError(t, NewMigrator(cfg.Database, nil).Apply(ctx, url))

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
		if dropErr := admin.DropDatabase(context.Background(), name); dropErr != nil {
			t.Logf("failed to drop helper database %s: %v", name, dropErr)
		}
		_ = admin.Close()
	})
	return db
}

// countRows returns the current row count of a table.
func countRows(t *testing.T, db DBTX, table Table) int {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(),
		fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	require.NoError(t, err)
	return n
}

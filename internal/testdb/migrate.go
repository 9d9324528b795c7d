package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/coachmate/coachmate-api/internal/config"
)

// defaultGooseTable is goose's own default version table, restored after
// every run.
const defaultGooseTable = "goose_db_version"

// gooseMu serializes migration runs. Goose carries its configuration in
// package-level state (dialect, table name, logger, base FS), so two suites
// provisioning concurrently must not interleave their runs.
var gooseMu sync.Mutex

// slogGooseLogger adapts the goose logger interface to use slog
type slogGooseLogger struct{}

// Printf implements the goose.Logger Printf method by forwarding messages to slog.Info
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(fmt.Sprintf(format, v...))
}

// Fatalf implements the goose.Logger Fatalf method by forwarding error messages to slog.Error
// Note: Unlike the standard Fatalf behavior, this does NOT call os.Exit;
// the error is returned to the caller, which decides how to exit
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...))
}

// Migrator applies pending schema migrations to freshly created test
// databases.
type Migrator struct {
	dir     string
	table   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMigrator creates a Migrator from the database configuration. An empty
// migrations directory means Apply is a no-op: the databases are handed out
// unmigrated.
// If logger is nil, a default logger will be used.
func NewMigrator(cfg config.DatabaseConfig, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	table := cfg.MigrationsTable
	if table == "" {
		table = defaultGooseTable
	}
	timeout := cfg.MigrationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Migrator{
		dir:     cfg.MigrationsDir,
		table:   table,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "migrations")),
	}
}

// Apply runs all pending migrations against the database at url, bounded
// by the configured timeout. It opens its own connection rather than using
// a pooled handle, and it sets the full goose configuration for the run,
// restoring the default version table afterward even on failure.
func (m *Migrator) Apply(ctx context.Context, url string) error {
	if m.dir == "" {
		m.logger.Warn("no migrations directory configured, skipping migration",
			slog.String("url", MaskDSN(url)))
		return nil
	}

	// A correlation ID ties all log lines of one run together
	correlationID := uuid.New().String()
	log := m.logger.With(
		slog.String("correlation_id", correlationID),
		slog.String("url", MaskDSN(url)),
	)

	startTime := time.Now()
	log.Info("starting migration run", slog.String("dir", m.dir))

	db, err := sql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("%w: open connection: %v", ErrMigrationFailed, err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn("failed to close migration connection",
				slog.String("error", closeErr.Error()))
		}
	}()

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := db.PingContext(runCtx); err != nil {
		return fmt.Errorf("%w: connect: %v", ErrMigrationFailed, err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(&slogGooseLogger{})
	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%w: set dialect: %v", ErrMigrationFailed, err)
	}
	goose.SetTableName(m.table)
	defer goose.SetTableName(defaultGooseTable)

	if err := goose.UpContext(runCtx, db, m.dir); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %s: %v", ErrMigrationFailed, m.timeout, err)
		}
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	version, err := goose.GetDBVersionContext(runCtx, db)
	if err != nil {
		log.Warn("failed to read migration version after run",
			slog.String("error", err.Error()))
	}

	log.Info("migration run completed",
		slog.Int64("version", version),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))
	return nil
}

package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coachmate/coachmate-api/internal/config"
	"github.com/coachmate/coachmate-api/internal/platform/postgres"
)

// TestDatabase describes one provisioned test database and how to reach it.
type TestDatabase struct {
	SuiteName string
	Name      string
	URL       string
	Type      DatabaseType
	CreatedAt time.Time
}

// CreateOptions controls how a suite's database is provisioned.
// An empty Type defaults to TypeUnit.
type CreateOptions struct {
	Type DatabaseType
	Seed bool
}

// suiteEntry tracks one suite's database. ready is closed when provisioning
// settles; afterward exactly one of db or err is set. Failed entries are
// removed from the registry before ready closes, and entries are always
// removed before any teardown I/O runs, so a suite observed in the registry
// is either provisioning or usable.
type suiteEntry struct {
	ready chan struct{}
	db    *TestDatabase
	err   error
}

// Manager owns the suite-to-database registry and drives the full lifecycle
// of test databases: create, migrate, seed, hand out pooled connections,
// and tear down. Construct one per process and call Shutdown when done;
// there is no package-level instance.
//
// Creation-path failures are returned as structured errors. Teardown-path
// failures are logged warnings and never returned, so cleanup keeps going
// even when individual databases resist being dropped.
type Manager struct {
	mu     sync.Mutex
	suites map[string]*suiteEntry
	scopes map[string]*Scope
	closed bool

	baseURL  string
	pool     *ConnPool
	cleaner  *Cleaner
	migrator *Migrator
	seeder   *Seeder
	admin    *postgres.Admin
	logger   *slog.Logger
}

// NewManager creates a Manager using the given pool and cleaner. It derives
// the server base URL from cfg.Database.URL and opens an administrative
// connection to the bootstrap database, so it fails fast when the server is
// unreachable. The caller keeps ownership of starting the pool's sweeper;
// Shutdown closes the pool.
// If logger is nil, a default logger will be used.
func NewManager(ctx context.Context, cfg *config.Config, pool *ConnPool, cleaner *Cleaner, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL, err := ExtractBaseURL(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to derive server base URL: %w", err)
	}

	admin, err := postgres.OpenAdmin(ctx, baseURL, cfg.Database.BootstrapName, cfg.Pool.ConnectTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}

	return &Manager{
		suites:   make(map[string]*suiteEntry),
		scopes:   make(map[string]*Scope),
		baseURL:  baseURL,
		pool:     pool,
		cleaner:  cleaner,
		migrator: NewMigrator(cfg.Database, logger),
		seeder:   NewSeeder(logger),
		admin:    admin,
		logger:   logger.With(slog.String("component", "lifecycle")),
	}, nil
}

// CreateTestDatabase returns the suite's database, provisioning it first if
// the suite has none. Calls for a suite that is already tracked return the
// existing database regardless of opts; concurrent calls for the same suite
// share a single provisioning run and all receive its outcome. A failed
// provisioning removes the suite entry so a later call can retry.
func (m *Manager) CreateTestDatabase(ctx context.Context, suiteName string, opts CreateOptions) (*TestDatabase, error) {
	switch opts.Type {
	case TypeUnit, TypeIntegration, TypeE2E:
	case "":
		opts.Type = TypeUnit
	default:
		m.logger.Warn("unknown database type, defaulting to unit",
			slog.String("database_type", string(opts.Type)),
			slog.String("suite", suiteName))
		opts.Type = TypeUnit
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if entry, ok := m.suites[suiteName]; ok {
		m.mu.Unlock()
		return m.await(ctx, suiteName, entry)
	}
	entry := &suiteEntry{ready: make(chan struct{})}
	m.suites[suiteName] = entry
	m.mu.Unlock()

	db, err := m.provision(ctx, suiteName, opts)

	m.mu.Lock()
	if err != nil {
		if m.suites[suiteName] == entry {
			delete(m.suites, suiteName)
		}
		entry.err = err
	} else {
		entry.db = db
	}
	m.mu.Unlock()
	close(entry.ready)

	if err != nil {
		return nil, err
	}
	out := *db
	return &out, nil
}

// await blocks until the suite's in-flight provisioning settles and returns
// its outcome.
func (m *Manager) await(ctx context.Context, suiteName string, entry *suiteEntry) (*TestDatabase, error) {
	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for provisioning of suite %q: %w", suiteName, ctx.Err())
	}
	if entry.err != nil {
		return nil, entry.err
	}
	db := *entry.db
	return &db, nil
}

// provision creates, connects, migrates, and optionally seeds one database.
func (m *Manager) provision(ctx context.Context, suiteName string, opts CreateOptions) (*TestDatabase, error) {
	dbName := GenerateDatabaseName(suiteName, opts.Type)
	dbURL := DatabaseURL(m.baseURL, dbName)
	meta := map[string]any{"suite": suiteName, "database": dbName}
	log := m.logger.With(
		slog.String("suite", suiteName),
		slog.String("database", dbName),
		slog.String("database_type", string(opts.Type)),
	)

	startTime := time.Now()
	log.Info("provisioning test database")

	if err := m.admin.CreateDatabase(ctx, dbName); err != nil {
		if postgres.IsDuplicateDatabase(err) {
			log.Warn("database already exists, reusing it")
		} else {
			return nil, newError("provision", "database creation failed", meta,
				fmt.Errorf("%w: %v", ErrDatabaseCreation, err))
		}
	}

	conn, err := m.pool.Acquire(ctx, dbURL)
	if err != nil {
		m.discard(dbName, "")
		return nil, newError("provision", "connection acquisition failed", meta, err)
	}

	if err := m.migrator.Apply(ctx, dbURL); err != nil {
		m.discard(dbName, dbURL)
		return nil, newError("provision", "migration failed", meta, err)
	}

	if opts.Seed {
		if err := m.seeder.Seed(ctx, conn, opts.Type); err != nil {
			m.discard(dbName, dbURL)
			return nil, newError("provision", "seeding failed", meta, err)
		}
	}

	log.Info("test database ready",
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))

	return &TestDatabase{
		SuiteName: suiteName,
		Name:      dbName,
		URL:       dbURL,
		Type:      opts.Type,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// discard drops a partially provisioned database after a failure. It is
// best-effort with its own deadline because the caller's context is often
// already canceled when provisioning fails; anything left behind is picked
// up later by the orphan tooling.
func (m *Manager) discard(dbName, pooledURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if pooledURL != "" {
		m.pool.Remove(pooledURL)
	}
	if err := m.admin.DropDatabase(ctx, dbName); err != nil {
		m.logger.Warn("failed to discard partially provisioned database",
			slog.String("database", dbName),
			slog.String("error", err.Error()))
	}
}

// GetTestDatabase returns the tracked database for the suite, or
// ErrNoActiveDatabase when the suite is untracked or still provisioning.
func (m *Manager) GetTestDatabase(suiteName string) (*TestDatabase, error) {
	m.mu.Lock()
	entry, ok := m.suites[suiteName]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoActiveDatabase, suiteName)
	}

	select {
	case <-entry.ready:
	default:
		return nil, fmt.Errorf("%w: %q is still provisioning", ErrNoActiveDatabase, suiteName)
	}
	if entry.db == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoActiveDatabase, suiteName)
	}
	db := *entry.db
	return &db, nil
}

// Conn returns the pooled connection for the suite's database, re-dialing
// through the pool if its idle connection was swept.
func (m *Manager) Conn(ctx context.Context, suiteName string) (*sql.DB, error) {
	db, err := m.GetTestDatabase(suiteName)
	if err != nil {
		return nil, err
	}
	return m.pool.Acquire(ctx, db.URL)
}

// List returns a snapshot of all usable databases, sorted by suite name.
func (m *Manager) List() []TestDatabase {
	m.mu.Lock()
	out := make([]TestDatabase, 0, len(m.suites))
	for _, entry := range m.suites {
		select {
		case <-entry.ready:
			if entry.db != nil {
				out = append(out, *entry.db)
			}
		default:
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SuiteName < out[j].SuiteName })
	return out
}

// PoolStats reports the connection pool's current statistics.
func (m *Manager) PoolStats() PoolStats {
	return m.pool.Stats()
}

// CleanupTestDatabase tears down the suite's database: the registry entry
// and the suite's scopes go away first, then the pooled connection is
// removed and the physical database dropped. Teardown failures are logged,
// never returned, and cleaning up an untracked suite is a no-op, so this is
// safe to call unconditionally from test teardown paths.
func (m *Manager) CleanupTestDatabase(ctx context.Context, suiteName string) {
	log := m.logger.With(slog.String("suite", suiteName))

	m.mu.Lock()
	entry, ok := m.suites[suiteName]
	m.mu.Unlock()
	if !ok {
		log.Debug("no test database tracked for suite, nothing to clean up")
		return
	}

	// Let an in-flight provisioning settle so teardown never races its I/O.
	select {
	case <-entry.ready:
	case <-ctx.Done():
		log.Warn("gave up waiting for provisioning to settle before cleanup",
			slog.String("error", ctx.Err().Error()))
		return
	}

	m.mu.Lock()
	if m.suites[suiteName] != entry {
		m.mu.Unlock()
		log.Debug("test database already cleaned up")
		return
	}
	delete(m.suites, suiteName)
	for id, scope := range m.scopes {
		if scope.suite == suiteName {
			delete(m.scopes, id)
		}
	}
	m.mu.Unlock()

	if entry.db == nil {
		return
	}
	db := entry.db

	m.pool.Release(db.URL)
	m.pool.Remove(db.URL)
	if err := m.admin.DropDatabase(ctx, db.Name); err != nil {
		log.Warn("failed to drop test database",
			slog.String("database", db.Name),
			slog.String("error", err.Error()))
		return
	}
	log.Info("test database torn down", slog.String("database", db.Name))
}

// CleanupAll tears down every tracked database. Like per-suite cleanup it
// only logs failures.
func (m *Manager) CleanupAll(ctx context.Context) {
	m.mu.Lock()
	suiteNames := make([]string, 0, len(m.suites))
	for name := range m.suites {
		suiteNames = append(suiteNames, name)
	}
	m.mu.Unlock()

	if len(suiteNames) == 0 {
		return
	}
	sort.Strings(suiteNames)
	m.logger.Info("cleaning up all test databases", slog.Int("count", len(suiteNames)))
	for _, name := range suiteNames {
		m.CleanupTestDatabase(ctx, name)
	}
}

// Shutdown tears down all remaining databases, closes the pool (stopping
// its sweeper and draining every connection), and closes the administrative
// connection. Further CreateTestDatabase calls fail with ErrPoolClosed.
// Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.CleanupAll(ctx)
	m.pool.Close()
	if err := m.admin.Close(); err != nil {
		m.logger.Warn("failed to close admin connection",
			slog.String("error", err.Error()))
	}
	m.logger.Info("lifecycle manager shut down")
}

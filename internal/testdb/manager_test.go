package testdb

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/coachmate/coachmate-api/internal/config"
	"github.com/coachmate/coachmate-api/internal/platform/postgres"
)

func TestGetTestDatabaseUnknownSuite(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)

	_, err := m.GetTestDatabase("never-created")
	assert.ErrorIs(t, err, ErrNoActiveDatabase)
}

func TestGetTestDatabaseWhileProvisioning(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)
	m.suites["in-flight"] = &suiteEntry{ready: make(chan struct{})}

	_, err := m.GetTestDatabase("in-flight")
	assert.ErrorIs(t, err, ErrNoActiveDatabase)
}

func TestCreateTestDatabaseReturnsExistingEntry(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)
	existing := &TestDatabase{
		SuiteName: "checkout",
		Name:      "test_unit_checkout_1724300000000_abcd1234",
		URL:       "postgres://postgres@localhost:5432/test_unit_checkout_1724300000000_abcd1234",
		Type:      TypeUnit,
		CreatedAt: time.Now().UTC(),
	}
	m.suites["checkout"] = readyEntry(existing)

	// Options on a repeat call are ignored; the tracked database wins.
	got, err := m.CreateTestDatabase(context.Background(), "checkout",
		CreateOptions{Type: TypeIntegration, Seed: true})

	require.NoError(t, err)
	assert.Equal(t, existing.Name, got.Name)
	assert.Equal(t, TypeUnit, got.Type)
	assert.NotSame(t, existing, got, "callers receive a copy, not the tracked record")
}

func TestCreateTestDatabaseWaitsForInflightProvisioning(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)
	entry := &suiteEntry{ready: make(chan struct{})}
	m.suites["slow-suite"] = entry

	type result struct {
		db  *TestDatabase
		err error
	}
	results := make(chan result, 1)
	go func() {
		db, err := m.CreateTestDatabase(context.Background(), "slow-suite", CreateOptions{})
		results <- result{db, err}
	}()

	select {
	case <-results:
		t.Fatal("duplicate create returned before provisioning settled")
	case <-time.After(50 * time.Millisecond):
	}

	entry.db = &TestDatabase{SuiteName: "slow-suite", Name: "test_unit_slow_suite_1_aa", Type: TypeUnit}
	close(entry.ready)

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, "test_unit_slow_suite_1_aa", res.db.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("duplicate create never observed the provisioning result")
	}
}

func TestCreateTestDatabaseCanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)
	m.suites["stuck"] = &suiteEntry{ready: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.CreateTestDatabase(ctx, "stuck", CreateOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateTestDatabaseOnClosedManager(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)
	m.closed = true

	_, err := m.CreateTestDatabase(context.Background(), "late-suite", CreateOptions{})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestCleanupTestDatabaseUnknownSuite(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)

	// Must not panic or touch any connection.
	m.CleanupTestDatabase(context.Background(), "ghost-suite")
}

func TestListReturnsOnlySettledSuites(t *testing.T) {
	t.Parallel()

	m := newBareManager(t)
	m.suites["beta"] = readyEntry(&TestDatabase{SuiteName: "beta", Name: "test_unit_beta_1_aa"})
	m.suites["alpha"] = readyEntry(&TestDatabase{SuiteName: "alpha", Name: "test_unit_alpha_1_aa"})
	m.suites["pending"] = &suiteEntry{ready: make(chan struct{})}

	got := m.List()

	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].SuiteName)
	assert.Equal(t, "beta", got[1].SuiteName)
}

func TestManagerLifecycleIntegration(t *testing.T) {
	m := newIntegrationManager(t)
	ctx := context.Background()

	db, err := m.CreateTestDatabase(ctx, "manager-lifecycle", CreateOptions{Type: TypeIntegration, Seed: true})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^test_integration_manager_lifecycle_\d+_[0-9a-f]{8}$`), db.Name)

	exists, err := m.admin.DatabaseExists(ctx, db.Name)
	require.NoError(t, err)
	assert.True(t, exists)

	// A second create returns the same database instead of provisioning.
	again, err := m.CreateTestDatabase(ctx, "manager-lifecycle", CreateOptions{Type: TypeUnit})
	require.NoError(t, err)
	assert.Equal(t, db.Name, again.Name)

	got, err := m.GetTestDatabase("manager-lifecycle")
	require.NoError(t, err)
	assert.Equal(t, db.Name, got.Name)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "manager-lifecycle", list[0].SuiteName)

	// The seeded integration profile: two accounts plus the coach catalog.
	conn, err := m.Conn(ctx, "manager-lifecycle")
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, conn, TableAccounts))
	assert.Equal(t, 2, countRows(t, conn, TableOfferings))
	assert.Equal(t, 3, countRows(t, conn, TableTimeSlots))
	assert.Equal(t, 1, countRows(t, conn, TableDiscounts))
	assert.Equal(t, 0, countRows(t, conn, TableBookings))

	stats := m.PoolStats()
	assert.Equal(t, 1, stats.TotalConnections)

	m.CleanupTestDatabase(ctx, "manager-lifecycle")

	exists, err = m.admin.DatabaseExists(ctx, db.Name)
	require.NoError(t, err)
	assert.False(t, exists, "cleanup must drop the physical database")

	_, err = m.GetTestDatabase("manager-lifecycle")
	assert.ErrorIs(t, err, ErrNoActiveDatabase)

	// Cleaning up again is a quiet no-op.
	m.CleanupTestDatabase(ctx, "manager-lifecycle")
}

func TestManagerConcurrentCreateSharesProvisioning(t *testing.T) {
	m := newIntegrationManager(t)
	ctx := context.Background()

	const workers = 5
	names := make([]string, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			db, err := m.CreateTestDatabase(gctx, "concurrent-create", CreateOptions{})
			if err != nil {
				return err
			}
			names[i] = db.Name
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, name := range names[1:] {
		assert.Equal(t, names[0], name, "every caller must receive the same database")
	}

	// Exactly one physical database was created for the suite.
	matches, err := m.admin.ListDatabases(ctx, `test\_unit\_concurrent\_create\_%`)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	m.CleanupTestDatabase(ctx, "concurrent-create")
}

func TestManagerCleanupAllIntegration(t *testing.T) {
	m := newIntegrationManager(t)
	ctx := context.Background()

	first, err := m.CreateTestDatabase(ctx, "cleanup-all-a", CreateOptions{})
	require.NoError(t, err)
	second, err := m.CreateTestDatabase(ctx, "cleanup-all-b", CreateOptions{})
	require.NoError(t, err)

	m.CleanupAll(ctx)

	assert.Empty(t, m.List())
	for _, name := range []string{first.Name, second.Name} {
		exists, err := m.admin.DatabaseExists(ctx, name)
		require.NoError(t, err)
		assert.False(t, exists)
	}
}

func TestManagerShutdownIntegration(t *testing.T) {
	cfg := integrationConfig(t)
	pool := NewConnPool(cfg.Pool, nil)
	m, err := NewManager(context.Background(), cfg, pool, NewCleaner(nil), nil)
	require.NoError(t, err)
	ctx := context.Background()

	db, err := m.CreateTestDatabase(ctx, "shutdown-suite", CreateOptions{})
	require.NoError(t, err)

	m.Shutdown(ctx)

	_, err = m.CreateTestDatabase(ctx, "post-shutdown", CreateOptions{})
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Shutdown is idempotent.
	m.Shutdown(ctx)
	assert.Empty(t, m.List())

	// Verify through a fresh admin connection that the database is gone.
	baseURL, err := ExtractBaseURL(cfg.Database.URL)
	require.NoError(t, err)
	admin, err := postgres.OpenAdmin(ctx, baseURL, cfg.Database.BootstrapName, cfg.Pool.ConnectTimeout, nil)
	require.NoError(t, err)
	defer func() { _ = admin.Close() }()

	exists, err := admin.DatabaseExists(ctx, db.Name)
	require.NoError(t, err)
	assert.False(t, exists, "shutdown must tear down remaining databases")
}

func TestManagerProvisioningFailureIntegration(t *testing.T) {
	cfg := integrationConfig(t)
	cfg.Database.MigrationsDir = t.TempDir() + "/does-not-exist"

	pool := NewConnPool(cfg.Pool, nil)
	m, err := NewManager(context.Background(), cfg, pool, NewCleaner(nil), nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	ctx := context.Background()

	_, provisionErr := m.CreateTestDatabase(ctx, "doomed-suite", CreateOptions{})
	require.Error(t, provisionErr)
	assert.ErrorIs(t, provisionErr, ErrMigrationFailed)

	// The failed entry is removed so the suite is free to retry.
	_, err = m.GetTestDatabase("doomed-suite")
	assert.ErrorIs(t, err, ErrNoActiveDatabase)

	// The partially provisioned database was discarded.
	var structured *Error
	require.ErrorAs(t, provisionErr, &structured)
	dbName, ok := structured.Meta["database"].(string)
	require.True(t, ok, "provisioning errors carry the generated database name")
	exists, err := m.admin.DatabaseExists(ctx, dbName)
	require.NoError(t, err)
	assert.False(t, exists, "failed provisioning must discard the database")
}

func TestManagerRejectsInvalidDatabaseURL(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "not-a-url"},
		Pool:     config.PoolConfig{},
	}
	pool := NewConnPool(cfg.Pool, nil)
	t.Cleanup(pool.Close)

	_, err := NewManager(context.Background(), cfg, pool, NewCleaner(nil), nil)
	assert.ErrorIs(t, err, ErrInvalidConnectionString)
}

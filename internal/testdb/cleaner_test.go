package testdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDB is a DBTX stub that records executed statements. It is safe
// for concurrent use so it can back parallel wipes.
type recordingDB struct {
	mu      sync.Mutex
	queries []string
	failOn  string // substring; matching statements fail instead of recording
	rows    int64
}

func (r *recordingDB) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && strings.Contains(query, r.failOn) {
		return nil, fmt.Errorf("relation %q is unavailable", r.failOn)
	}
	r.queries = append(r.queries, query)
	return driver.RowsAffected(r.rows), nil
}

func (r *recordingDB) QueryContext(_ context.Context, _ string, _ ...any) (*sql.Rows, error) {
	return nil, errors.New("recordingDB does not support queries")
}

func (r *recordingDB) QueryRowContext(_ context.Context, _ string, _ ...any) *sql.Row {
	return nil
}

func (r *recordingDB) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queries))
	copy(out, r.queries)
	return out
}

func deleteStatements(tables []Table) []string {
	out := make([]string, len(tables))
	for i, table := range tables {
		out[i] = fmt.Sprintf("DELETE FROM %s", table)
	}
	return out
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()

	db := &recordingDB{rows: 7}
	rows, err := TableAccounts.DeleteAll(context.Background(), db)

	require.NoError(t, err)
	assert.Equal(t, int64(7), rows)
	assert.Equal(t, []string{"DELETE FROM accounts"}, db.recorded())
}

func TestWipeSequentialVisitsTablesInOrder(t *testing.T) {
	t.Parallel()

	db := &recordingDB{}
	cleaner := NewCleaner(nil)

	err := cleaner.Wipe(context.Background(), db, WipeOptions{})

	require.NoError(t, err)
	assert.Equal(t, deleteStatements(wipeOrder), db.recorded())
}

func TestWipeParallelRespectsBatchBoundaries(t *testing.T) {
	t.Parallel()

	db := &recordingDB{}
	cleaner := NewCleaner(nil)

	err := cleaner.Wipe(context.Background(), db, WipeOptions{Parallel: true})
	require.NoError(t, err)

	got := db.recorded()
	require.Len(t, got, len(wipeOrder))

	// Tables within one batch may interleave, but single-table batches are
	// position-fixed and no batch starts before the previous one finished.
	assert.ElementsMatch(t, deleteStatements(wipeBatches[0]), got[0:3])
	assert.Equal(t, "DELETE FROM payments", got[3])
	assert.Equal(t, "DELETE FROM bookings", got[4])
	assert.ElementsMatch(t, deleteStatements(wipeBatches[3]), got[5:8])
	assert.Equal(t, "DELETE FROM accounts", got[8])
}

func TestWipeModesIssueSameStatements(t *testing.T) {
	t.Parallel()

	seqDB := &recordingDB{}
	parDB := &recordingDB{}
	cleaner := NewCleaner(nil)

	require.NoError(t, cleaner.Wipe(context.Background(), seqDB, WipeOptions{}))
	require.NoError(t, cleaner.Wipe(context.Background(), parDB, WipeOptions{Parallel: true}))

	seq := seqDB.recorded()
	par := parDB.recorded()
	sort.Strings(seq)
	sort.Strings(par)
	assert.Equal(t, seq, par)
}

func TestWipeSequentialStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	db := &recordingDB{failOn: "bookings"}
	cleaner := NewCleaner(nil)

	err := cleaner.Wipe(context.Background(), db, WipeOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCleanupFailed)

	var structured *Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, "wipe", structured.Op)
	assert.Equal(t, "sequential", structured.Meta["mode"])
	assert.Equal(t, "bookings", structured.Meta["table"])

	// Nothing past the failing table was touched.
	got := db.recorded()
	assert.Equal(t, deleteStatements(wipeOrder[:4]), got)
	assert.NotContains(t, got, "DELETE FROM accounts")
}

func TestWipeParallelFailureStopsLaterBatches(t *testing.T) {
	t.Parallel()

	db := &recordingDB{failOn: "payments"}
	cleaner := NewCleaner(nil)

	err := cleaner.Wipe(context.Background(), db, WipeOptions{Parallel: true})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCleanupFailed)

	var structured *Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, "parallel", structured.Meta["mode"])
	assert.Equal(t, "payments", structured.Meta["table"])

	got := db.recorded()
	assert.NotContains(t, got, "DELETE FROM bookings")
	assert.NotContains(t, got, "DELETE FROM accounts")
}

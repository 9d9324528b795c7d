package testdb

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database operations the cleaner and seeder need.
// Both *sql.DB and *sql.Tx satisfy it, so the same code runs against a
// pooled handle or inside a native transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time checks that the standard handles satisfy DBTX.
var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

package testdb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors returned by the pool and lifecycle manager.
var (
	// ErrConnectTimeout is returned when a connection attempt does not
	// settle within the configured connect timeout. It replaces the raw
	// driver error so callers can react to the timeout as a policy matter.
	ErrConnectTimeout = errors.New("connection attempt timed out")

	// ErrDatabaseCreation is returned when the administrative CREATE
	// DATABASE fails for any reason other than the database already
	// existing (which is tolerated as a no-op).
	ErrDatabaseCreation = errors.New("database creation failed")

	// ErrMigrationFailed is returned when the migration tool fails or times
	// out against a freshly created database.
	ErrMigrationFailed = errors.New("migration failed")

	// ErrSeeding is returned only when seeding leaves zero instances of a
	// required parent entity. Individual seed-row failures are logged and
	// skipped, not returned.
	ErrSeeding = errors.New("seeding failed")

	// ErrCleanupFailed is returned when a table wipe fails. Callers should
	// treat the database state as unknown and fall back to a full teardown.
	ErrCleanupFailed = errors.New("cleanup failed")

	// ErrInvalidConnectionString is returned when a connection URL cannot
	// be parsed into scheme, credentials, and host.
	ErrInvalidConnectionString = errors.New("invalid connection string")

	// ErrNoActiveDatabase is returned when an operation references a suite
	// that has no tracked database.
	ErrNoActiveDatabase = errors.New("no active database for suite")

	// ErrPoolClosed is returned by Acquire after the pool has been drained
	// for shutdown.
	ErrPoolClosed = errors.New("connection pool is closed")

	// ErrNoActiveScope is returned when closing or rolling back a scope the
	// manager is not tracking.
	ErrNoActiveScope = errors.New("no active scope")
)

// CapacityError is returned by Acquire when the pool is full even after an
// idle sweep. It carries the observed and configured sizes so callers can
// report or react to the pressure.
type CapacityError struct {
	URL     string // the URL whose acquisition was refused
	Current int    // pool size at refusal time
	Max     int    // configured maximum
}

// Error implements the error interface for CapacityError.
func (e *CapacityError) Error() string {
	return fmt.Sprintf(
		"connection pool at capacity (%d/%d), cannot connect to %s",
		e.Current,
		e.Max,
		MaskDSN(e.URL),
	)
}

// IsCapacityError checks if the error is a pool capacity refusal.
func IsCapacityError(err error) bool {
	var capErr *CapacityError
	return errors.As(err, &capErr)
}

// Error is the structured error type for lifecycle and cleanup failures.
// It carries the failed operation, a human-readable message, a metadata bag
// (suite, database name, URL, mode flags), and the original cause.
type Error struct {
	Op      string         // the operation that failed (e.g. "create", "wipe")
	Message string         // error message
	Meta    map[string]any // contextual metadata, may be nil
	Err     error          // original error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed: ")
	b.WriteString(e.Message)
	if len(e.Meta) > 0 {
		// Deterministic key order keeps messages stable for log grepping
		keys := make([]string, 0, len(e.Meta))
		for k := range e.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Meta[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError creates a structured Error with the given operation, message,
// metadata, and wrapped cause.
func newError(op, message string, meta map[string]any, err error) *Error {
	return &Error{
		Op:      op,
		Message: message,
		Meta:    meta,
		Err:     err,
	}
}

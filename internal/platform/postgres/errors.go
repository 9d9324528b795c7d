package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
const (
	// duplicateDatabaseCode is the PostgreSQL error code returned by
	// CREATE DATABASE when the database already exists
	duplicateDatabaseCode = "42P04"

	// invalidCatalogNameCode is the PostgreSQL error code returned when
	// connecting to or dropping a database that does not exist
	invalidCatalogNameCode = "3D000"

	// objectInUseCode is the PostgreSQL error code returned by DROP DATABASE
	// when sessions are still connected to the target database
	objectInUseCode = "55006"

	// uniqueViolationCode is the PostgreSQL error code for unique constraint violations
	uniqueViolationCode = "23505"

	// foreignKeyViolationCode is the PostgreSQL error code for foreign key violations
	foreignKeyViolationCode = "23503"
)

// IsDuplicateDatabase checks if the given error indicates that a
// CREATE DATABASE target already exists. Callers that treat an existing
// database as success use this to distinguish the benign race from real
// creation failures.
func IsDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == duplicateDatabaseCode
}

// IsDatabaseNotFound checks if the given error indicates that the named
// database does not exist (invalid_catalog_name).
func IsDatabaseNotFound(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidCatalogNameCode
}

// IsObjectInUse checks if the given error indicates that DROP DATABASE was
// blocked by sessions still connected to the target database.
func IsObjectInUse(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == objectInUseCode
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
// This is useful for detecting duplicate records that violate unique constraints.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// IsForeignKeyViolation checks if the given error is a PostgreSQL foreign key constraint violation.
// Deleting tables out of dependency order surfaces as this error.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coachmate/coachmate-api/internal/testdb"
)

// MapErrorToStatusCode maps provisioning errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error types
// or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Unknown or still-provisioning suites
	case errors.Is(err, testdb.ErrNoActiveDatabase):
		return http.StatusNotFound

	// Pool refusals: at capacity or shutting down
	case testdb.IsCapacityError(err),
		errors.Is(err, testdb.ErrPoolClosed):
		return http.StatusServiceUnavailable

	// Timeouts reaching the database server
	case errors.Is(err, testdb.ErrConnectTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message based
// on the error type. The raw error text stays in the server logs.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, testdb.ErrNoActiveDatabase):
		return "No active test database for this suite"

	case testdb.IsCapacityError(err):
		return "Connection pool is at capacity"

	case errors.Is(err, testdb.ErrPoolClosed):
		return "The provisioner is shutting down"

	case errors.Is(err, testdb.ErrConnectTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return "Timed out talking to the database server"

	case errors.Is(err, testdb.ErrDatabaseCreation):
		return "Database creation failed"

	case errors.Is(err, testdb.ErrMigrationFailed):
		return "Migrations failed on the new database"

	case errors.Is(err, testdb.ErrSeeding):
		return "Seeding failed on the new database"

	case errors.Is(err, testdb.ErrInvalidConnectionString):
		return "Server database URL is misconfigured"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Validator errors look like:
	// "Key: 'CreateDatabaseRequest.SuiteName' Error:Field validation for
	// 'SuiteName' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

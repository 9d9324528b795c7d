package api

import (
	"context"
	"time"

	"github.com/coachmate/coachmate-api/internal/testdb"
)

// DatabaseManager is the slice of the lifecycle manager the handlers need.
// *testdb.Manager satisfies it; tests substitute a fake.
type DatabaseManager interface {
	CreateTestDatabase(
		ctx context.Context,
		suiteName string,
		opts testdb.CreateOptions,
	) (*testdb.TestDatabase, error)
	GetTestDatabase(suiteName string) (*testdb.TestDatabase, error)
	List() []testdb.TestDatabase
	PoolStats() testdb.PoolStats
	CleanupTestDatabase(ctx context.Context, suiteName string)
	CleanupAll(ctx context.Context)
}

// DatabaseResponse represents the wire form of a provisioned test database.
// The connection URL is masked; clients join on the database name and build
// connection strings from credentials they already hold.
type DatabaseResponse struct {
	SuiteName string    `json:"suite_name"`
	Database  string    `json:"database"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// databaseToResponse converts a testdb.TestDatabase to a DatabaseResponse.
func databaseToResponse(db *testdb.TestDatabase) DatabaseResponse {
	return DatabaseResponse{
		SuiteName: db.SuiteName,
		Database:  db.Name,
		URL:       testdb.MaskDSN(db.URL),
		Type:      string(db.Type),
		CreatedAt: db.CreatedAt,
	}
}

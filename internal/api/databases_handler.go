package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coachmate/coachmate-api/internal/api/shared"
	"github.com/coachmate/coachmate-api/internal/platform/logger"
	"github.com/coachmate/coachmate-api/internal/redact"
	"github.com/coachmate/coachmate-api/internal/testdb"
)

// CreateDatabaseRequest represents the request body for provisioning a suite
// database.
type CreateDatabaseRequest struct {
	SuiteName string `json:"suite_name" validate:"required,min=1"`
	Type      string `json:"type"       validate:"omitempty,oneof=unit integration e2e"`
	Seed      bool   `json:"seed"`
}

// DatabaseHandler handles test-database lifecycle HTTP requests.
type DatabaseHandler struct {
	manager DatabaseManager
	logger  *slog.Logger
}

// NewDatabaseHandler creates a new DatabaseHandler.
func NewDatabaseHandler(manager DatabaseManager, logger *slog.Logger) *DatabaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseHandler{
		manager: manager,
		logger:  logger.With(slog.String("component", "database_handler")),
	}
}

// CreateDatabase handles POST /api/databases requests. Repeated requests for
// the same suite return the already-provisioned database.
func (h *DatabaseHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateDatabaseRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(&req); err != nil {
		log.Warn("validation error", slog.String("error", redact.Error(err)))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	db, err := h.manager.CreateTestDatabase(r.Context(), req.SuiteName, testdb.CreateOptions{
		Type: testdb.DatabaseType(req.Type),
		Seed: req.Seed,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("test database provisioned",
		slog.String("suite", db.SuiteName),
		slog.String("database", db.Name))
	shared.RespondWithJSON(w, r, http.StatusCreated, databaseToResponse(db))
}

// ListDatabases handles GET /api/databases requests. Only suites whose
// provisioning has settled appear in the listing.
func (h *DatabaseHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	dbs := h.manager.List()

	responses := make([]DatabaseResponse, 0, len(dbs))
	for i := range dbs {
		responses = append(responses, databaseToResponse(&dbs[i]))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetDatabase handles GET /api/databases/{suite} requests.
func (h *DatabaseHandler) GetDatabase(w http.ResponseWriter, r *http.Request) {
	suite := chi.URLParam(r, "suite")
	if suite == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Suite name is required")
		return
	}

	db, err := h.manager.GetTestDatabase(suite)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, databaseToResponse(db))
}

// CleanupDatabase handles POST /api/databases/{suite}/cleanup requests.
// Cleanup runs synchronously and never fails the request; teardown problems
// are logged server side. Unknown suites are a no-op.
func (h *DatabaseHandler) CleanupDatabase(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	suite := chi.URLParam(r, "suite")
	if suite == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Suite name is required")
		return
	}

	h.manager.CleanupTestDatabase(r.Context(), suite)

	log.Debug("cleanup completed", slog.String("suite", suite))
	w.WriteHeader(http.StatusNoContent)
}

// CleanupAll handles POST /api/cleanup requests, tearing down every tracked
// suite database.
func (h *DatabaseHandler) CleanupAll(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	h.manager.CleanupAll(r.Context())

	log.Debug("cleanup of all suites completed")
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/coachmate/coachmate-api/internal/api/shared"
)

// StatsHandler serves point-in-time pool usage snapshots.
type StatsHandler struct {
	manager DatabaseManager
	logger  *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(manager DatabaseManager, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{
		manager: manager,
		logger:  logger.With(slog.String("component", "stats_handler")),
	}
}

// GetStats handles GET /api/stats requests.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.manager.PoolStats())
}

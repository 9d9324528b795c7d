package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apiMiddleware "github.com/coachmate/coachmate-api/internal/api/middleware"
)

// NewRouter creates and configures the ops API router with all routes and
// middleware. The returned handler is ready to serve.
func NewRouter(manager DatabaseManager, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	databaseHandler := NewDatabaseHandler(manager, logger)
	statsHandler := NewStatsHandler(manager, logger)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", statsHandler.GetStats)
		r.Post("/cleanup", databaseHandler.CleanupAll)

		r.Route("/databases", func(r chi.Router) {
			r.Post("/", databaseHandler.CreateDatabase)
			r.Get("/", databaseHandler.ListDatabases)
			r.Get("/{suite}", databaseHandler.GetDatabase)
			r.Post("/{suite}/cleanup", databaseHandler.CleanupDatabase)
		})
	})

	// Health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coachmate/coachmate-api/internal/api"
	"github.com/coachmate/coachmate-api/internal/testdb"
)

// shutdownTimeout bounds how long serve waits for in-flight requests and
// database teardown once a shutdown signal arrives.
const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioner with its ops API",
	Long: `Start the connection pool and lifecycle manager and expose the ops
API over HTTP.

The API serves pool statistics, lists tracked databases, provisions a
database for a suite, and tears suites down. On SIGINT or SIGTERM the
server stops accepting requests and drops every tracked test database
before the process exits.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().
		StringVar(&serveAddr, "addr", "", "Listen address (defaults to ops.addr from configuration)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()

	pool := testdb.NewConnPool(cfg.Pool, log)
	pool.Start()

	manager, err := testdb.NewManager(serverCtx, cfg, pool, testdb.NewCleaner(log), log)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to initialize database manager: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Ops.Addr
	}

	server := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(manager, log),
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("ops API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err)
			cancelServer()
		}
	}()

	select {
	case sig := <-shutdownCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case <-serverCtx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}

	// Manager shutdown drops every tracked database and closes the pool.
	manager.Shutdown(shutdownCtx)

	log.Info("provisioner stopped")
	return nil
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the gamble ledger HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (file, GAMBLE_* env) and apply command-line flags
  2. Configure logging
  3. Open the configured store (sqlite, memory or redis)
  4. Create controller, metrics, handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Config file path (optional)
  -port    HTTP server port (overrides server.port)
  -db      SQLite database path (overrides storage.sqlite_path)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  ./server -db="./data/gamble.db"
  GAMBLE_STORAGE_DRIVER=redis GAMBLE_REDIS_ADDR=localhost:6379 ./server
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings and defaults
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/warp/gamble-ledger/api"
	"github.com/warp/gamble-ledger/config"
	"github.com/warp/gamble-ledger/engine"
	"github.com/warp/gamble-ledger/pkg/logging"
	"github.com/warp/gamble-ledger/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "Config file path")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Driver = config.DriverSQLite
		cfg.Storage.SQLitePath = *dbPath
	}

	logger := logging.Setup(cfg.Log.Level)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	ctx := context.Background()
	txStore, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	controller := engine.NewController(txStore,
		engine.WithLogger(logger),
		engine.WithLocation(loc),
		engine.WithTimeFormat(cfg.Display.TimeFormat),
	)

	// Check the stored state on startup; drift is logged, not fatal
	if _, err := controller.Reconcile(ctx); err != nil {
		logger.Warn("Startup reconciliation failed", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(reg)
	if players, err := controller.Players(ctx); err == nil {
		metrics.Players.Set(float64(len(players)))
	}

	handler := api.NewHandler(controller, metrics, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    reg,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			"addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
			"storage", cfg.Storage.Driver,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

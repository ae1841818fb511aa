/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rent ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load YAML config if given
  2. Initialize SQLite store
  3. Connect blob storage (MinIO, or in-memory without config)
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (optional; defaults apply without it)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/cobranza.db"

  # Run with full config (blob storage, reminder window)
  ./server -config=config.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: YAML schema and defaults
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cobranza/rent-ledger/api"
	"github.com/cobranza/rent-ledger/blob"
	"github.com/cobranza/rent-ledger/config"
	"github.com/cobranza/rent-ledger/export"
	"github.com/cobranza/rent-ledger/ledger"
	"github.com/cobranza/rent-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		log.Error("failed to initialize database", "path", cfg.Storage.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var blobs blob.Storage
	if cfg.Blob.Endpoint != "" {
		mc, err := blob.NewMinio(blob.MinioConfig{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    cfg.Blob.UseSSL,
		})
		if err != nil {
			log.Error("failed to connect blob storage", "endpoint", cfg.Blob.Endpoint, "error", err)
			os.Exit(1)
		}
		if err := mc.EnsureBucket(context.Background()); err != nil {
			log.Error("failed to ensure bucket", "bucket", cfg.Blob.Bucket, "error", err)
			os.Exit(1)
		}
		blobs = mc
	} else {
		log.Warn("no blob endpoint configured, attachments will export as missing")
		blobs = blob.NewMemory()
	}

	clock := ledger.SystemClock{}
	exporter := &export.Aggregator{
		Repo:        store,
		Blobs:       blobs,
		Concurrency: cfg.Export.Concurrency,
	}

	handler := api.NewHandler(store, store, exporter, clock, log)
	handler.Policy = ledger.DefaultDuePolicy{ReminderDays: cfg.Notify.ReminderDays}

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // exports can be slow on many attachments
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "db", cfg.Storage.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

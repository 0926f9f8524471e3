/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget ledger engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load optional YAML config
  2. Initialize SQLite store (runs migrations)
  3. Optionally seed starter funds for the fiscal year
  4. Wire services: sequence generator, notification hub,
     allocation store, transaction ledger, report aggregator
  5. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file path (optional)
  -port    HTTP server port, overrides config (default: 8080)
  -db      SQLite database path, overrides config
           Use ":memory:" for an in-memory database
  -seed    Insert starter funds when the database is empty

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete
  3. Close the notification hub and database
  4. Exit

EXAMPLES:
  ./server -db="./data/budget.db"
  ./server -config=config.yaml
  ./server -db=":memory:" -seed

SEE ALSO:
  - config/config.go: YAML configuration
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/budget-engine/allocation"
	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/config"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/report"
	"github.com/warp/budget-engine/sequence"
	"github.com/warp/budget-engine/store/sqlite"
)

func main() {
	// Flags; config file first, explicit flags win
	configPath := flag.String("config", "", "YAML config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	seed := flag.Bool("seed", false, "insert starter funds when the database is empty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *seed {
		cfg.Engine.Seed = true
	}
	fiscalYear := cfg.Engine.FiscalYear
	if fiscalYear == 0 {
		fiscalYear = time.Now().Year()
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if cfg.Engine.Seed {
		if err := store.Seed(context.Background(), fiscalYear); err != nil {
			log.Printf("Warning: failed to seed starter funds: %v", err)
		}
	}

	// Wire services
	hub := notify.NewHub()
	defer hub.Close()

	seq := sequence.New(store)
	alloc := allocation.New(store, seq, hub)
	led := ledger.New(store, alloc, seq, hub)
	reports := report.New(store, hub)

	// Log fund balance changes; the UI subscribes the same way.
	sub := notify.Subscribe(hub, func(e budget.FundUpdated) {
		log.Printf("fund %s %s, remaining balance %s", e.FundCode, e.Kind, e.NewBalance.StringFixed(2))
	})
	defer sub.Unsubscribe()

	handler := api.NewHandler(alloc, led, reports)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

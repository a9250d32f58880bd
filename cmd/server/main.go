/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Parse flags, load TOML config (flags win)
  2. Open SQLite store
  3. Wire ledger, workflow, gate, settlements, account book
  4. Start the HTTP server with graceful shutdown

FLAGS:
  -config  TOML config path (default: jaaga.toml, missing file = defaults)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (":memory:" for in-memory)
  -brokers comma-separated Kafka brokers; enables event publishing
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
	"strings"
	"syscall"
	"time"

	"github.com/Effimetic/Jaaga-sub003/api"
	"github.com/Effimetic/Jaaga-sub003/config"
	"github.com/Effimetic/Jaaga-sub003/credit"
	"github.com/Effimetic/Jaaga-sub003/events"
	"github.com/Effimetic/Jaaga-sub003/events/kafka"
	"github.com/Effimetic/Jaaga-sub003/store/sqlite"
)

func main() {
	configPath := flag.String("config", "jaaga.toml", "TOML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *brokers != "" {
		cfg.Events.Enabled = true
		cfg.Events.Brokers = strings.Split(*brokers, ",")
	}

	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled {
		kp := kafka.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		defer kp.Close()
		publisher = kp
		log.Printf("Publishing ledger events to %v (%s)", cfg.Events.Brokers, cfg.Events.Topic)
	}

	ledger := credit.NewLedger(store,
		credit.WithPublisher(publisher),
		credit.WithLockWait(cfg.Gate.LockWait()),
	)

	// Identity lives in the auth subsystem; until that wiring lands the
	// directory trusts any owner id already present in the link store.
	directory := ownerDirectory{}

	workflow := credit.NewConnectionWorkflow(store, directory)
	gate := credit.NewBookingCreditGate(store, ledger).WithRetry(credit.RetryPolicy{
		Attempts: cfg.Gate.RetryAttempts,
		Backoff:  cfg.Gate.RetryBackoff(),
	})
	settlements := credit.NewSettlementProcessor(store, ledger)
	book := credit.NewAccountBook(store)

	handler := api.NewHandler(workflow, gate, settlements, ledger, book, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Credit engine listening on :%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// ownerDirectory accepts any principal id as an owner. Phone-number
// resolution belongs to the auth subsystem's API once integrated.
type ownerDirectory struct{}

func (d ownerDirectory) ResolveOwner(_ context.Context, idOrPhone string) (credit.PrincipalID, error) {
	if idOrPhone == "" {
		return "", credit.ErrNotFound
	}
	return credit.PrincipalID(idOrPhone), nil
}

package main

import (
	"context"
	"fmt"
	"os"

	"floodattr/adapters/api"
	"floodattr/adapters/postgres"
	"floodattr/internal"
	"floodattr/internal/config"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Standalone report server. Equivalent to `floodattr serve`, kept as its own
// binary for deployments that only read the ledger.
func main() {
	_ = godotenv.Load()
	log := internal.DefaultLogger

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ledger, err := postgres.Open(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Error("opening ledger: %v", err)
		os.Exit(1)
	}
	defer ledger.Close()

	server := api.NewServer(ledger, log)
	if err := server.ListenAndServe(cfg.Server.Port); err != nil {
		log.Error("server: %v", err)
		os.Exit(1)
	}
}

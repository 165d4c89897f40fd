package main

import (
	"context"
	"fmt"
	"os"

	"floodattr/adapters/postgres"
	"floodattr/internal/config"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Applies the ledger schema and exits. The run and serve paths also migrate
// on open; this exists for provisioning pipelines that migrate separately.
func main() {
	_ = godotenv.Load()

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
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer ledger.Close()

	fmt.Println("ledger schema applied")
}

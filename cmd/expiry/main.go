// cmd/expiry/main.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"wimbli/internal/adapter/storage"
	"wimbli/internal/config"
	"wimbli/internal/service/expiry"
	"wimbli/pkg/logging"
)

// Runs a single expiry sweep against the Postgres document store and exits.
// Exit status is non-zero when the sweep fails or any batch could not be deleted.
func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.NoColor)

	if cfg.Store.Driver != config.StorePostgres {
		logger.Error("expiry sweep needs the postgres store", "driver", cfg.Store.Driver)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Expiry.SweepTimeout)
	defer cancel()

	db, err := pgxpool.Connect(ctx, cfg.Database.ConnString())
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	// Live views in the API process learn about deletions over NATS
	nc, err := nats.Connect(cfg.NATS.URL, nats.Timeout(cfg.NATS.ConnectTimeout))
	if err != nil {
		logger.Error("unable to connect to NATS", "error", err)
		return 1
	}
	// Close flushes pending change notices
	defer nc.Close()

	sweeper := expiry.NewSweeper(storage.NewDocumentStore(db, nc, logger), expiry.Config{
		Retention:    cfg.Expiry.Retention,
		BatchSize:    cfg.Expiry.BatchSize,
		SweepTimeout: cfg.Expiry.SweepTimeout,
	}, logger)

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		logger.Error("expiry sweep failed", "error", err)
		return 1
	}
	if result.FailedBatches > 0 {
		return 2
	}
	return 0
}

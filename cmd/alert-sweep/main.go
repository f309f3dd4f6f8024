// alert-sweep runs a single expiration cycle and exits. Useful for ops
// checks and for clearing a backlog after the service was down.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr1hm/go-panic-alerts/internal/config"
	"github.com/mr1hm/go-panic-alerts/internal/logging"
	"github.com/mr1hm/go-panic-alerts/internal/repository"
	"github.com/mr1hm/go-panic-alerts/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sw := sweeper.New(db, nil, cfg.Sweep)
	if err := sw.Sweep(ctx); err != nil {
		logging.Fatalf("Sweep failed: %v", err)
	}

	slog.Info("sweep complete")
}

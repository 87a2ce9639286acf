// migrate runs DB migrations from embedded SQL; go run ./cmd/migrate -direction up|down [-steps N].
package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"pikacloud/backend/internal/config"
	"pikacloud/backend/internal/db/migrate"
	"pikacloud/backend/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Number of migrations to apply; 0 applies all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("migrate: config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, false)
	if cfg.DatabaseURL == "" {
		slog.Error("migrate: DATABASE_URL is not set")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction, *steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("migrate: no change")
			return
		}
		slog.Error("migrate: failed", "direction", *direction, "error", err)
		os.Exit(1)
	}
	slog.Info("migrate: done", "direction", *direction)
}

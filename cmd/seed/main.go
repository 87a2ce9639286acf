// seed creates the member and admin roles and, when SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD
// are set, a local-password administrator. Idempotent.
package main

import (
	"context"
	"log/slog"
	"os"

	"pikacloud/backend/internal/app"
	"pikacloud/backend/internal/config"
	"pikacloud/backend/internal/logger"
	"pikacloud/backend/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("seed: config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, false)
	if cfg.DatabaseURL == "" {
		slog.Error("seed: DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	storage, err := app.OpenStorage(cfg)
	if err != nil {
		slog.Error("seed: db", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	ctx := context.Background()
	if err := app.SeedRoles(ctx, storage.Identity); err != nil {
		slog.Error("seed: roles", "error", err)
		os.Exit(1)
	}
	slog.Info("seed: roles ready")

	username, password := os.Getenv("SEED_ADMIN_USERNAME"), os.Getenv("SEED_ADMIN_PASSWORD")
	if username == "" || password == "" {
		slog.Info("seed: SEED_ADMIN_USERNAME/SEED_ADMIN_PASSWORD not set, skipping admin")
		return
	}
	userID, err := app.SeedAdmin(ctx, storage.Identity, security.NewHasher(cfg.BcryptCost), username, password)
	if err != nil {
		slog.Error("seed: admin", "error", err)
		os.Exit(1)
	}
	slog.Info("seed: admin ready", "username", username, "user_id", userID)
}

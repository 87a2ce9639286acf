// Worker keeps cloud provider credentials warm in the shared cache on WARM_SCHEDULE, so API
// requests rarely pay for a token fetch. Run with -run-once to refresh once and exit.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"pikacloud/backend/internal/app"
	"pikacloud/backend/internal/cloud"
	"pikacloud/backend/internal/config"
	"pikacloud/backend/internal/logger"
)

const warmTimeout = time.Minute

func main() {
	runOnce := flag.Bool("run-once", false, "Warm credentials once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("worker: config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	credCache, closeCache, err := app.OpenCache(ctx, cfg)
	if err != nil {
		slog.Error("worker: cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()
	if cfg.RedisURL == "" {
		slog.Warn("worker: REDIS_URL not set, warmed credentials stay in this process")
	}

	registry, err := app.NewCloudRegistry(cfg, credCache)
	if err != nil {
		slog.Error("worker: cloud providers", "error", err)
		os.Exit(1)
	}
	if len(registry.Names()) == 0 {
		slog.Error("worker: CLOUD_PROVIDERS is empty, nothing to warm")
		os.Exit(1)
	}

	warm := func() error {
		wctx, cancel := context.WithTimeout(ctx, warmTimeout)
		defer cancel()
		return cloud.WarmAll(wctx, registry)
	}

	if *runOnce {
		if err := warm(); err != nil {
			slog.Error("worker: warm failed", "error", err)
			os.Exit(1)
		}
		slog.Info("worker: warm completed")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.WarmSchedule, func() {
		if err := warm(); err != nil {
			slog.Error("worker: scheduled warm failed", "error", err)
		}
	}); err != nil {
		slog.Error("worker: invalid WARM_SCHEDULE", "schedule", cfg.WarmSchedule, "error", err)
		os.Exit(1)
	}

	if err := warm(); err != nil {
		slog.Warn("worker: initial warm failed", "error", err)
	}
	c.Start()
	slog.Info("worker: started", "schedule", cfg.WarmSchedule, "providers", registry.Names())

	<-ctx.Done()
	slog.Info("worker: shutting down")
	<-c.Stop().Done()
	slog.Info("worker: stopped")
}

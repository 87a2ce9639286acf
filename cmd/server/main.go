package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"pikacloud/backend/internal/app"
	"pikacloud/backend/internal/audit"
	audithandler "pikacloud/backend/internal/audit/handler"
	"pikacloud/backend/internal/cloud/account"
	cloudhandler "pikacloud/backend/internal/cloud/handler"
	"pikacloud/backend/internal/config"
	healthhandler "pikacloud/backend/internal/health/handler"
	identityhandler "pikacloud/backend/internal/identity/handler"
	"pikacloud/backend/internal/identity/service"
	"pikacloud/backend/internal/logger"
	"pikacloud/backend/internal/security"
	"pikacloud/backend/internal/server"
	"pikacloud/backend/internal/server/middleware"
	oteltelemetry "pikacloud/backend/internal/telemetry/otel"
	userhandler "pikacloud/backend/internal/user/handler"
)

const (
	shutdownTimeout   = 15 * time.Second
	readinessInterval = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server: exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := oteltelemetry.NewProviders(ctx, cfg.OTLPEndpoint, cfg.OTelServiceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			slog.Warn("server: telemetry shutdown", "error", err)
		}
	}()
	logger.Init(cfg.LogLevel, providers.Exporting)

	storage, err := app.OpenStorage(cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	credCache, closeCache, err := app.OpenCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	hasher := security.NewHasher(cfg.BcryptCost)
	tokenProvider, err := app.NewTokenProvider(cfg)
	if err != nil {
		return err
	}
	authProviders, err := app.NewAuthProviders(cfg, storage.Identity, hasher)
	if err != nil {
		return err
	}
	cloudProviders, err := app.NewCloudRegistry(cfg, credCache)
	if err != nil {
		return err
	}
	policy, err := app.NewPolicy(ctx, cfg)
	if err != nil {
		return err
	}

	auditLogger := audit.NewLogger(storage.Audit, middleware.GetClientIP)
	checker := healthhandler.NewChecker(map[string]healthhandler.Pinger{
		"store": storage.Identity,
		"cache": credCache,
	}).WithPolicy(policy)

	var loginLimiter func(http.Handler) http.Handler
	if cfg.LoginRateLimit > 0 {
		loginLimiter = middleware.NewRateLimiter(ctx, rate.Limit(cfg.LoginRateLimit), cfg.LoginRateBurst).Middleware
	}

	router := server.NewRouter(server.RouterOptions{
		AuthPrefix:   cfg.AuthPathPrefix,
		Auth:         identityhandler.NewHandler(service.NewAuthService(authProviders, tokenProvider, auditLogger)),
		Gate:         middleware.NewGate(cfg.AuthPathPrefix, tokenProvider, policy),
		Health:       checker,
		User:         userhandler.NewHandler(storage.Identity, hasher),
		Cloud:        cloudhandler.NewHandler(account.NewService(cloudProviders, storage.CloudLinks, storage.Identity)),
		AuditList:    audithandler.NewHandler(storage.Audit),
		AuditLogger:  auditLogger,
		LoginLimiter: loginLimiter,
		TrustProxy:   cfg.TrustProxy,
		CORSOrigins:  cfg.CORSOriginList(),
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("server: http listening", "addr", cfg.HTTPAddr, "auth_providers", authProviders.Names(), "cloud_providers", cloudProviders.Names())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcServer *server.HealthServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = server.NewHealthServer(checker)
		go grpcServer.WatchReadiness(ctx, readinessInterval)
		go func() {
			slog.Info("server: grpc health listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("server: shutting down")
	case err := <-errCh:
		slog.Error("server: listener failed", "error", err)
		stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(sctx); err != nil {
		return err
	}
	slog.Info("server: stopped")
	return nil
}

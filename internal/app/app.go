// Package app builds the process components shared by the binaries in cmd/ from Config.
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	auditrepo "pikacloud/backend/internal/audit/repository"
	"pikacloud/backend/internal/cache"
	"pikacloud/backend/internal/cloud"
	cloudrepo "pikacloud/backend/internal/cloud/account/repository"
	"pikacloud/backend/internal/cloud/openstack"
	"pikacloud/backend/internal/cloud/tokens"
	"pikacloud/backend/internal/config"
	"pikacloud/backend/internal/db"
	"pikacloud/backend/internal/identity/federation"
	"pikacloud/backend/internal/identity/provider"
	"pikacloud/backend/internal/identity/repository"
	"pikacloud/backend/internal/policy/engine"
	"pikacloud/backend/internal/security"
)

// Storage groups the relational stores. With no DATABASE_URL every store is in memory.
type Storage struct {
	Identity   repository.Store
	Audit      auditrepo.Repository
	CloudLinks cloudrepo.Repository
	conn       *sql.DB
}

// OpenStorage connects to Postgres, or builds in-memory stores when no DSN is configured.
func OpenStorage(cfg *config.Config) (*Storage, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("app: DATABASE_URL not set, using in-memory stores")
		return &Storage{
			Identity:   repository.NewMemoryStore(),
			Audit:      auditrepo.NewMemoryRepository(),
			CloudLinks: cloudrepo.NewMemoryRepository(),
		}, nil
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Storage{
		Identity:   repository.NewPostgresStore(conn),
		Audit:      auditrepo.NewPostgresRepository(conn),
		CloudLinks: cloudrepo.NewPostgresRepository(conn),
		conn:       conn,
	}, nil
}

func (s *Storage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// OpenCache connects to Redis, or returns a process-local cache when no URL is configured.
// The returned close function is never nil.
func OpenCache(ctx context.Context, cfg *config.Config) (cache.Cache, func() error, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryCache(), func() error { return nil }, nil
	}
	c, err := cache.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// NewCloudRegistry builds the enabled cloud identity providers on top of one token manager.
func NewCloudRegistry(cfg *config.Config, c cache.Cache) (*cloud.Registry, error) {
	mgr := tokens.NewManager(c, cfg.SafetyMargin(), cfg.ReferenceTTL())
	var providers []cloud.Provider
	for _, name := range cfg.CloudProviderList() {
		switch name {
		case config.CloudProviderOpenStack:
			providers = append(providers, openstack.NewClient(openstack.Config{
				KeystoneURL:   cfg.OpenStackKeystone,
				AdminUsername: cfg.OpenStackAdminUsername,
				AdminPassword: cfg.OpenStackAdminPassword,
				Domain:        cfg.OpenStackDomain,
				Timeout:       cfg.CloudTimeoutDuration(),
			}, mgr))
		default:
			return nil, fmt.Errorf("unknown cloud provider %q", name)
		}
	}
	return cloud.NewRegistry(providers...)
}

// NewAuthProviders builds the enabled login providers in configured order.
func NewAuthProviders(cfg *config.Config, store repository.Store, hasher *security.Hasher) (*provider.Registry, error) {
	resolver := federation.NewResolver(store, cfg.StoreTimeoutDuration())
	vcfg := func(appID, appKey string) provider.ValidatorConfig {
		return provider.ValidatorConfig{
			AppID:       appID,
			AppKey:      appKey,
			ValidateURL: cfg.IAAAValidateURL,
			Timeout:     cfg.ValidatorTimeoutDuration(),
			MFARequired: cfg.EnableMFA,
		}
	}
	var providers []provider.Provider
	for _, name := range cfg.AuthProviderList() {
		switch name {
		case config.ProviderPassword:
			providers = append(providers, provider.NewPasswordProvider(store, resolver, hasher, cfg.AllowPasswordRegister, cfg.EnableMFA))
		case config.ProviderIAAA:
			providers = append(providers, provider.NewIAAAProvider(vcfg(cfg.IAAAAppID, cfg.IAAAAppKey), resolver))
		case config.ProviderLCPU:
			providers = append(providers, provider.NewLCPUProvider(vcfg(cfg.LCPUAppID, cfg.LCPUAppKey), cfg.LCPUAppRoot, resolver))
		default:
			return nil, fmt.Errorf("unknown auth provider %q", name)
		}
	}
	return provider.NewRegistry(providers...)
}

// NewTokenProvider returns the session claim signer: a key pair when JWT_PRIVATE_KEY is set,
// otherwise the HS256 secret. Outside production an empty secret is replaced with a random
// one, so claims do not survive a restart.
func NewTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey != "" {
		priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return nil, fmt.Errorf("load jwt keys: %w", err)
		}
		return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL())
	}
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		if cfg.Env == "production" {
			return nil, errors.New("JWT_SECRET or JWT_PRIVATE_KEY must be set when APP_ENV=production")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		slog.Warn("app: JWT_SECRET not set, using an ephemeral secret")
	}
	return security.NewHMACTokenProvider(secret, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL())
}

// NewPolicy compiles the route policy, from POLICY_FILE when set.
func NewPolicy(ctx context.Context, cfg *config.Config) (*engine.OPAEvaluator, error) {
	if cfg.PolicyFile != "" {
		return engine.NewOPAEvaluatorFromFile(ctx, cfg.AdminPrefixList(), cfg.PolicyFile)
	}
	return engine.NewOPAEvaluator(ctx, cfg.AdminPrefixList(), "")
}

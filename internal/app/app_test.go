package app

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pikacloud/backend/internal/cache"
	"pikacloud/backend/internal/config"
	"pikacloud/backend/internal/identity/federation"
	"pikacloud/backend/internal/identity/repository"
	"pikacloud/backend/internal/policy/engine"
	"pikacloud/backend/internal/security"
)

func baseConfig() *config.Config {
	return &config.Config{
		AuthProviders:     "password",
		AdminPathPrefixes: "/api/admin,/admin",
		JWTIssuer:         "pikacloud-auth",
		JWTAudience:       "pikacloud-api",
		BcryptCost:        bcrypt.MinCost,
	}
}

func TestOpenStorage_InMemory(t *testing.T) {
	s, err := OpenStorage(baseConfig())
	require.NoError(t, err)
	assert.IsType(t, &repository.MemoryStore{}, s.Identity)
	assert.NoError(t, s.Identity.Ping(context.Background()))
	assert.NoError(t, s.Close())
}

func TestOpenCache_InMemory(t *testing.T) {
	c, closeFn, err := OpenCache(context.Background(), baseConfig())
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)
	assert.NoError(t, closeFn())
}

func TestNewCloudRegistry(t *testing.T) {
	cfg := baseConfig()
	reg, err := NewCloudRegistry(cfg, cache.NewMemoryCache())
	require.NoError(t, err)
	assert.Empty(t, reg.Names())

	cfg.CloudProviders = "openstack"
	cfg.OpenStackKeystone = "http://keystone.invalid/v3"
	reg, err = NewCloudRegistry(cfg, cache.NewMemoryCache())
	require.NoError(t, err)
	assert.Equal(t, []string{"openstack"}, reg.Names())

	cfg.CloudProviders = "openstack,openstack"
	_, err = NewCloudRegistry(cfg, cache.NewMemoryCache())
	assert.Error(t, err)
}

func TestNewAuthProviders(t *testing.T) {
	cfg := baseConfig()
	cfg.AuthProviders = "password,iaaa,lcpu"
	cfg.LCPUAppRoot = "https://lcpu.example"
	reg, err := NewAuthProviders(cfg, repository.NewMemoryStore(), security.NewHasher(bcrypt.MinCost))
	require.NoError(t, err)
	assert.Equal(t, []string{"password", "iaaa", "lcpu"}, reg.Names())

	cfg.AuthProviders = "github"
	_, err = NewAuthProviders(cfg, repository.NewMemoryStore(), security.NewHasher(bcrypt.MinCost))
	assert.Error(t, err)
}

func TestNewTokenProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.JWTSecret = security.TestSecret
	p, err := NewTokenProvider(cfg)
	require.NoError(t, err)
	tok, _, err := p.Issue("u1", []string{"member"})
	require.NoError(t, err)
	claims, err := p.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	cfg.JWTSecret = ""
	_, err = NewTokenProvider(cfg)
	assert.NoError(t, err, "development falls back to an ephemeral secret")

	cfg.Env = "production"
	_, err = NewTokenProvider(cfg)
	assert.Error(t, err)

	cfg.JWTSecret = "short"
	_, err = NewTokenProvider(cfg)
	assert.ErrorIs(t, err, security.ErrWeakSecret)
}

func TestNewTokenProvider_SingleLineKeyPair(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	privDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	oneLine := func(b *pem.Block) string {
		return strings.ReplaceAll(string(pem.EncodeToMemory(b)), "\n", `\n`)
	}

	cfg := baseConfig()
	cfg.Env = "production"
	cfg.JWTPrivateKey = oneLine(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})
	cfg.JWTPublicKey = oneLine(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	p, err := NewTokenProvider(cfg)
	require.NoError(t, err)
	tok, _, err := p.Issue("u1", []string{"admin"})
	require.NoError(t, err)
	claims, err := p.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, claims.Roles)

	cfg.JWTPublicKey = "not a key"
	_, err = NewTokenProvider(cfg)
	assert.Error(t, err)
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy(context.Background(), baseConfig())
	require.NoError(t, err)
	ok, err := p.Allow(context.Background(), engine.Input{Path: "/admin/x", Method: "GET", Roles: []string{"member"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	hasher := security.NewHasher(bcrypt.MinCost)

	require.NoError(t, SeedRoles(ctx, store))
	require.NoError(t, SeedRoles(ctx, store))

	id, err := SeedAdmin(ctx, store, hasher, "root", "secret123")
	require.NoError(t, err)
	again, err := SeedAdmin(ctx, store, hasher, "root", "other-password")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	roles, err := federation.NewResolver(store, 0).RolesOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "member"}, roles)

	u, err := store.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.NoError(t, hasher.Compare(u.PasswordHash, []byte("secret123")))
}

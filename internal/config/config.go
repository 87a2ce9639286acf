// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Known auth provider names accepted in AUTH_PROVIDERS.
const (
	ProviderPassword = "password"
	ProviderIAAA     = "iaaa"
	ProviderLCPU     = "lcpu"
)

// CloudProviderOpenStack is the only cloud provider name accepted in CLOUD_PROVIDERS.
const CloudProviderOpenStack = "openstack"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store (not allowed in production).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the shared credential cache (redis://host:port/db). Empty selects a process-local cache.
	RedisURL string `mapstructure:"REDIS_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// TrustProxy makes the client address come from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`
	// CORSAllowedOrigins is a comma-separated origin list; empty disables CORS headers.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// AuthProviders is the comma-separated list of enabled login providers (password, iaaa, lcpu).
	AuthProviders string `mapstructure:"AUTH_PROVIDERS"`
	// EnableMFA is reported by every provider as its multi-factor requirement.
	EnableMFA bool `mapstructure:"ENABLE_MFA"`
	// AllowPasswordRegister gates local-password registration.
	AllowPasswordRegister bool `mapstructure:"ALLOW_PASSWORD_REGISTER"`
	// BcryptCost is the bcrypt cost factor (4–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	IAAAAppID       string `mapstructure:"IAAA_APP_ID"`
	IAAAAppKey      string `mapstructure:"IAAA_APP_KEY"`
	IAAAValidateURL string `mapstructure:"IAAA_VALIDATE_URL"`
	LCPUAppID       string `mapstructure:"LCPU_APP_ID"`
	LCPUAppKey      string `mapstructure:"LCPU_APP_KEY"`
	// LCPUAppRoot is the LCPU base URL; the iaaa-compatible validate path is appended.
	LCPUAppRoot string `mapstructure:"LCPU_APP_ROOT"`
	// ValidatorTimeout bounds each call to an external identity validator (e.g. "10s").
	ValidatorTimeout string `mapstructure:"VALIDATOR_TIMEOUT"`

	// JWTSecret is the HS256 secret for session claims. Ignored when JWT_PRIVATE_KEY is set.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTLRaw is the session claim lifetime (e.g. "24h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`

	// AuthPathPrefix is the prefix of the login routes, which the gate never admits.
	AuthPathPrefix string `mapstructure:"AUTH_PATH_PREFIX"`
	// AdminPathPrefixes is a comma-separated list of prefixes that require the admin role.
	AdminPathPrefixes string `mapstructure:"ADMIN_PATH_PREFIXES"`
	// PolicyFile optionally replaces the embedded route policy with a rego file.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// CloudProviders is the comma-separated list of enabled cloud identity providers (openstack).
	CloudProviders         string `mapstructure:"CLOUD_PROVIDERS"`
	OpenStackKeystone      string `mapstructure:"OPENSTACK_KEYSTONE"`
	OpenStackAdminUsername string `mapstructure:"OPENSTACK_ADMIN_USERNAME"`
	OpenStackAdminPassword string `mapstructure:"OPENSTACK_ADMIN_PASSWORD"`
	OpenStackDomain        string `mapstructure:"OPENSTACK_DOMAIN"`
	CloudTimeout           string `mapstructure:"CLOUD_TIMEOUT"`
	// TokenSafetyMargin is subtracted from a token's declared expiry before caching.
	TokenSafetyMargin string `mapstructure:"TOKEN_SAFETY_MARGIN"`
	// ReferenceTTLRaw is the cache lifetime of slowly-changing reference ids.
	ReferenceTTLRaw string `mapstructure:"REFERENCE_TTL"`

	// StoreTimeout bounds each federation store sequence.
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`
	// LoginRateLimit is the per-client request rate (per second) on POST auth routes; 0 disables.
	LoginRateLimit float64 `mapstructure:"LOGIN_RATE_LIMIT"`
	LoginRateBurst int     `mapstructure:"LOGIN_RATE_BURST"`
	// WarmSchedule is the cron spec used by the credential warmer (cmd/worker).
	WarmSchedule string `mapstructure:"WARM_SCHEDULE"`

	LogLevel         string `mapstructure:"LOG_LEVEL"`
	OTLPEndpoint     string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("AUTH_PROVIDERS", ProviderPassword)
	v.SetDefault("ENABLE_MFA", false)
	v.SetDefault("ALLOW_PASSWORD_REGISTER", false)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("IAAA_APP_ID", "")
	v.SetDefault("IAAA_APP_KEY", "")
	v.SetDefault("IAAA_VALIDATE_URL", "https://iaaa.pku.edu.cn/iaaa/svc/token/validate.do")
	v.SetDefault("LCPU_APP_ID", "")
	v.SetDefault("LCPU_APP_KEY", "")
	v.SetDefault("LCPU_APP_ROOT", "")
	v.SetDefault("VALIDATOR_TIMEOUT", "10s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "pikacloud-auth")
	v.SetDefault("JWT_AUDIENCE", "pikacloud-api")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("AUTH_PATH_PREFIX", "/api/auth")
	v.SetDefault("ADMIN_PATH_PREFIXES", "/api/admin,/admin")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("CLOUD_PROVIDERS", "")
	v.SetDefault("OPENSTACK_KEYSTONE", "")
	v.SetDefault("OPENSTACK_ADMIN_USERNAME", "")
	v.SetDefault("OPENSTACK_ADMIN_PASSWORD", "")
	v.SetDefault("OPENSTACK_DOMAIN", "Default")
	v.SetDefault("CLOUD_TIMEOUT", "15s")
	v.SetDefault("TOKEN_SAFETY_MARGIN", "300s")
	v.SetDefault("REFERENCE_TTL", "24h")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("LOGIN_RATE_LIMIT", 5)
	v.SetDefault("LOGIN_RATE_BURST", 10)
	v.SetDefault("WARM_SCHEDULE", "@every 10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "pikacloud-identity")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DatabaseURL == "" && c.Env == "production" {
		return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	providers := c.AuthProviderList()
	if len(providers) == 0 {
		return errors.New("config: AUTH_PROVIDERS must name at least one provider")
	}
	for _, p := range providers {
		switch p {
		case ProviderPassword:
		case ProviderIAAA:
			if c.IAAAAppID == "" || c.IAAAAppKey == "" {
				return errors.New("config: IAAA_APP_ID and IAAA_APP_KEY must be set when iaaa is enabled")
			}
		case ProviderLCPU:
			if c.LCPUAppID == "" || c.LCPUAppKey == "" || c.LCPUAppRoot == "" {
				return errors.New("config: LCPU_APP_ID, LCPU_APP_KEY and LCPU_APP_ROOT must be set when lcpu is enabled")
			}
		default:
			return fmt.Errorf("config: unknown auth provider %q", p)
		}
	}

	for _, p := range c.CloudProviderList() {
		if p != CloudProviderOpenStack {
			return fmt.Errorf("config: unknown cloud provider %q", p)
		}
		if c.OpenStackKeystone == "" || c.OpenStackAdminUsername == "" || c.OpenStackAdminPassword == "" {
			return errors.New("config: OPENSTACK_KEYSTONE, OPENSTACK_ADMIN_USERNAME and OPENSTACK_ADMIN_PASSWORD must be set when openstack is enabled")
		}
	}
	return nil
}

// AuthProviderList returns the enabled auth provider names in configured order.
func (c *Config) AuthProviderList() []string {
	return splitList(c.AuthProviders)
}

// CloudProviderList returns the enabled cloud provider names.
func (c *Config) CloudProviderList() []string {
	return splitList(c.CloudProviders)
}

// AdminPrefixList returns the path prefixes that require the admin role.
func (c *Config) AdminPrefixList() []string {
	return splitList(c.AdminPathPrefixes)
}

// CORSOriginList returns the allowed CORS origins.
func (c *Config) CORSOriginList() []string {
	return splitList(c.CORSAllowedOrigins)
}

// SessionTTL parses SessionTTLRaw. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, 24*time.Hour)
}

// ValidatorTimeoutDuration parses ValidatorTimeout. Returns 10s if unset or invalid.
func (c *Config) ValidatorTimeoutDuration() time.Duration {
	return parseDuration(c.ValidatorTimeout, 10*time.Second)
}

// CloudTimeoutDuration parses CloudTimeout. Returns 15s if unset or invalid.
func (c *Config) CloudTimeoutDuration() time.Duration {
	return parseDuration(c.CloudTimeout, 15*time.Second)
}

// SafetyMargin parses TokenSafetyMargin. Returns 300s if unset or invalid.
func (c *Config) SafetyMargin() time.Duration {
	return parseDuration(c.TokenSafetyMargin, 300*time.Second)
}

// ReferenceTTL parses ReferenceTTLRaw. Returns 24h if unset or invalid.
func (c *Config) ReferenceTTL() time.Duration {
	return parseDuration(c.ReferenceTTLRaw, 24*time.Hour)
}

// StoreTimeoutDuration parses StoreTimeout. Returns 5s if unset or invalid.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return parseDuration(c.StoreTimeout, 5*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "pikacloud-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "pikacloud-auth")
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if got := cfg.AuthProviderList(); len(got) != 1 || got[0] != ProviderPassword {
		t.Errorf("AuthProviderList = %v, want [password]", got)
	}
	if cfg.AllowPasswordRegister {
		t.Error("AllowPasswordRegister should default to false")
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL())
	}
	if cfg.SafetyMargin() != 300*time.Second {
		t.Errorf("SafetyMargin = %v, want 300s", cfg.SafetyMargin())
	}
	if got := cfg.AdminPrefixList(); len(got) != 2 || got[0] != "/api/admin" || got[1] != "/admin" {
		t.Errorf("AdminPrefixList = %v", got)
	}
	if cfg.AuthPathPrefix != "/api/auth" {
		t.Errorf("AuthPathPrefix = %q", cfg.AuthPathPrefix)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "12")
	os.Setenv("ALLOW_PASSWORD_REGISTER", "true")
	os.Setenv("SESSION_TTL", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if !cfg.AllowPasswordRegister {
		t.Error("AllowPasswordRegister should be true")
	}
	if cfg.SessionTTL() != 2*time.Hour {
		t.Errorf("SessionTTL = %v, want 2h", cfg.SessionTTL())
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	os.Clearenv()
	os.Setenv("BCRYPT_COST", "3")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject BCRYPT_COST below 4")
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	os.Clearenv()
	os.Setenv("AUTH_PROVIDERS", "password,github")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject unknown auth provider")
	}
}

func TestLoad_IAAARequiresCredentials(t *testing.T) {
	os.Clearenv()
	os.Setenv("AUTH_PROVIDERS", "password,iaaa")

	if _, err := Load(); err == nil {
		t.Fatal("Load should require IAAA_APP_ID and IAAA_APP_KEY")
	}

	os.Setenv("IAAA_APP_ID", "app")
	os.Setenv("IAAA_APP_KEY", "key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IAAAValidateURL == "" {
		t.Error("IAAAValidateURL should have a default")
	}
}

func TestLoad_LCPURequiresRoot(t *testing.T) {
	os.Clearenv()
	os.Setenv("AUTH_PROVIDERS", "lcpu")
	os.Setenv("LCPU_APP_ID", "app")
	os.Setenv("LCPU_APP_KEY", "key")

	if _, err := Load(); err == nil {
		t.Fatal("Load should require LCPU_APP_ROOT")
	}
}

func TestLoad_OpenStackRequiresAdmin(t *testing.T) {
	os.Clearenv()
	os.Setenv("CLOUD_PROVIDERS", "openstack")
	os.Setenv("OPENSTACK_KEYSTONE", "http://keystone:5000/v3")

	if _, err := Load(); err == nil {
		t.Fatal("Load should require openstack admin credentials")
	}
}

func TestLoad_ProductionRequiresDatabase(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load should require DATABASE_URL in production")
	}
}

func TestDurations_InvalidFallBack(t *testing.T) {
	cfg := &Config{SessionTTLRaw: "nope", ValidatorTimeout: "-1s", CloudTimeout: "", TokenSafetyMargin: "0s"}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL())
	}
	if cfg.ValidatorTimeoutDuration() != 10*time.Second {
		t.Errorf("ValidatorTimeoutDuration = %v", cfg.ValidatorTimeoutDuration())
	}
	if cfg.CloudTimeoutDuration() != 15*time.Second {
		t.Errorf("CloudTimeoutDuration = %v", cfg.CloudTimeoutDuration())
	}
	if cfg.SafetyMargin() != 300*time.Second {
		t.Errorf("SafetyMargin = %v", cfg.SafetyMargin())
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("splitList = %v", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}

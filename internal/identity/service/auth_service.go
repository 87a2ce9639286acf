// Package service orchestrates login and registration: provider selection by name,
// session claim issuance, and audit events.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pikacloud/backend/internal/audit"
	auditdomain "pikacloud/backend/internal/audit/domain"
	"pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/identity/provider"
)

// TokenIssuer signs session claims.
type TokenIssuer interface {
	Issue(userID string, roles []string) (token string, expiresAt time.Time, err error)
}

// AuthResult is returned by Login, Register and Callback.
type AuthResult struct {
	UserID      string
	Roles       []string
	Token       string
	ExpiresAt   time.Time
	MFARequired bool
}

// ProviderInfo describes an enabled provider to clients.
type ProviderInfo struct {
	Name                 string
	MFARequired          bool
	SupportsRegistration bool
}

// AuthService dispatches auth requests to providers and issues session claims.
type AuthService struct {
	providers *provider.Registry
	tokens    TokenIssuer
	audit     audit.AuditLogger
}

// NewAuthService returns an AuthService. auditLogger may be nil.
func NewAuthService(providers *provider.Registry, tokens TokenIssuer, auditLogger audit.AuditLogger) *AuthService {
	return &AuthService{providers: providers, tokens: tokens, audit: auditLogger}
}

// Providers lists enabled providers in configuration order.
func (s *AuthService) Providers() []ProviderInfo {
	names := s.providers.Names()
	out := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		p, _ := s.providers.Get(name)
		out = append(out, ProviderInfo{
			Name:                 name,
			MFARequired:          p.MFARequired(),
			SupportsRegistration: p.SupportsRegistration(),
		})
	}
	return out
}

// Login authenticates payload with the named provider and issues a session claim.
func (s *AuthService) Login(ctx context.Context, providerName string, payload json.RawMessage, clientAddr string) (*AuthResult, error) {
	p, ok := s.providers.Get(providerName)
	if !ok {
		return nil, domain.BadRequest("invalid provider")
	}
	res, err := p.Login(ctx, payload, clientAddr)
	if err != nil {
		ae := s.fail(ctx, "login", providerName, err)
		if ae.Kind == domain.KindUnauthorized {
			s.logEvent(ctx, "", auditdomain.ActionLoginFailure, providerName)
		}
		return nil, ae
	}
	out, err := s.issue(ctx, p, res)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, res.UserID, auditdomain.ActionLoginSuccess, providerName)
	return out, nil
}

// Register creates an account with the named provider and issues a session claim.
// Providers without registration support are rejected before they are called.
func (s *AuthService) Register(ctx context.Context, providerName string, payload json.RawMessage) (*AuthResult, error) {
	p, ok := s.providers.Get(providerName)
	if !ok {
		return nil, domain.BadRequest("invalid provider")
	}
	if !p.SupportsRegistration() {
		return nil, domain.BadRequest("registration is not supported by this provider")
	}
	res, err := p.Register(ctx, payload)
	if err != nil {
		return nil, s.fail(ctx, "register", providerName, err)
	}
	out, err := s.issue(ctx, p, res)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, res.UserID, auditdomain.ActionRegister, providerName)
	return out, nil
}

// Callback completes a redirect-style login: the authorization code is the provider token.
func (s *AuthService) Callback(ctx context.Context, providerName, code, clientAddr string) (*AuthResult, error) {
	if code == "" {
		return nil, domain.BadRequest("code is required")
	}
	payload, err := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: code})
	if err != nil {
		return nil, domain.Internal(err)
	}
	return s.Login(ctx, providerName, payload, clientAddr)
}

func (s *AuthService) issue(ctx context.Context, p provider.Provider, res *domain.Result) (*AuthResult, error) {
	roles := res.Roles
	if roles == nil {
		roles = []string{}
	}
	token, expiresAt, err := s.tokens.Issue(res.UserID, roles)
	if err != nil {
		slog.ErrorContext(ctx, "auth: issue session claim", "user_id", res.UserID, "error", err)
		return nil, domain.Internal(err)
	}
	return &AuthResult{
		UserID:      res.UserID,
		Roles:       roles,
		Token:       token,
		ExpiresAt:   expiresAt,
		MFARequired: p.MFARequired(),
	}, nil
}

// fail classifies err and logs internal failures with their cause.
func (s *AuthService) fail(ctx context.Context, op, providerName string, err error) *domain.AuthError {
	ae := domain.AsAuthError(err)
	if ae.Kind == domain.KindInternal {
		slog.ErrorContext(ctx, "auth: "+op+" failed", "provider", providerName, "error", err)
	}
	return ae
}

func (s *AuthService) logEvent(ctx context.Context, userID, action, resource string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, userID, action, resource, "")
}

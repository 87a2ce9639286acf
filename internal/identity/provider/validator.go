package provider

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pikacloud/backend/internal/identity/domain"
	userdomain "pikacloud/backend/internal/user/domain"
)

// lcpuValidatePath is appended to the LCPU application root.
const lcpuValidatePath = "/api/oauth/iaaa_compat/svc/token/validate.do"

// maxValidatorBody caps how much of a validator response is read.
const maxValidatorBody = 1 << 20

// Federator maps a validated external identity to a local account.
type Federator interface {
	ResolveOrCreate(ctx context.Context, provider userdomain.LoginProvider, ident domain.ExternalIdentity) (*domain.Result, error)
}

// ValidatorConfig configures one external token validator.
type ValidatorConfig struct {
	AppID       string
	AppKey      string
	ValidateURL string
	Timeout     time.Duration
	MFARequired bool
}

// ValidatorProvider logs users in by validating an opaque token with an IAAA-compatible
// service, then federates the returned identity. It does not support registration.
type ValidatorProvider struct {
	kind        userdomain.LoginProvider
	appID       string
	appKey      string
	validateURL string
	mfaRequired bool
	client      *http.Client
	federator   Federator
}

type tokenPayload struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Success  bool   `json:"success"`
	ErrCode  string `json:"errCode"`
	ErrMsg   string `json:"errMsg"`
	UserInfo struct {
		Name           string `json:"name"`
		Status         string `json:"status"`
		IdentityID     string `json:"identityId"`
		DeptID         string `json:"deptId"`
		Dept           string `json:"dept"`
		IdentityType   string `json:"identityType"`
		DetailType     string `json:"detailType"`
		IdentityStatus string `json:"identityStatus"`
		Campus         string `json:"campus"`
	} `json:"userInfo"`
}

// NewIAAAProvider returns the provider for the university IAAA service.
func NewIAAAProvider(cfg ValidatorConfig, federator Federator) *ValidatorProvider {
	return newValidatorProvider(userdomain.LoginProviderIAAA, cfg, federator)
}

// NewLCPUProvider returns the provider for the LCPU IAAA-compatible service rooted at appRoot.
func NewLCPUProvider(cfg ValidatorConfig, appRoot string, federator Federator) *ValidatorProvider {
	cfg.ValidateURL = strings.TrimRight(appRoot, "/") + lcpuValidatePath
	return newValidatorProvider(userdomain.LoginProviderLCPU, cfg, federator)
}

func newValidatorProvider(kind userdomain.LoginProvider, cfg ValidatorConfig, federator Federator) *ValidatorProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ValidatorProvider{
		kind:        kind,
		appID:       cfg.AppID,
		appKey:      cfg.AppKey,
		validateURL: cfg.ValidateURL,
		mfaRequired: cfg.MFARequired,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		federator: federator,
	}
}

func (p *ValidatorProvider) Name() string               { return string(p.kind) }
func (p *ValidatorProvider) MFARequired() bool          { return p.mfaRequired }
func (p *ValidatorProvider) SupportsRegistration() bool { return false }

// Login validates the token carried in payload for clientAddr and federates the identity.
func (p *ValidatorProvider) Login(ctx context.Context, payload json.RawMessage, clientAddr string) (*domain.Result, error) {
	var tp tokenPayload
	if err := decodePayload(payload, &tp); err != nil {
		return nil, err
	}
	if tp.Token == "" {
		return nil, domain.BadRequest("token is required")
	}
	if clientAddr == "" {
		return nil, domain.Unauthorized(domain.MsgUnauthorized, errors.New("client address unavailable"))
	}

	ident, err := p.validate(context.WithoutCancel(ctx), tp.Token, clientAddr)
	if err != nil {
		return nil, err
	}
	return p.federator.ResolveOrCreate(ctx, p.kind, *ident)
}

// Register is never routed to external providers; reaching it is a wiring bug.
func (p *ValidatorProvider) Register(ctx context.Context, _ json.RawMessage) (*domain.Result, error) {
	err := fmt.Errorf("provider %s: register called but registration is unsupported", p.kind)
	slog.ErrorContext(ctx, "auth: invariant violated", "error", err)
	return nil, domain.Internal(err)
}

func (p *ValidatorProvider) validate(ctx context.Context, token, clientAddr string) (*domain.ExternalIdentity, error) {
	q := url.Values{}
	q.Set("appId", p.appID)
	q.Set("remoteAddr", clientAddr)
	q.Set("token", token)
	q.Set("msgAbs", Signature(p.appID, clientAddr, token, p.appKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.validateURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.Internal(err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "auth: validator request failed", "provider", string(p.kind), "error", err)
		return nil, domain.Unauthorized(domain.MsgUnauthorized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxValidatorBody))
		slog.WarnContext(ctx, "auth: validator rejected request", "provider", string(p.kind), "status", resp.StatusCode)
		return nil, domain.Unauthorized(domain.MsgUnauthorized, fmt.Errorf("validator status %d", resp.StatusCode))
	}

	var vr validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxValidatorBody)).Decode(&vr); err != nil {
		slog.WarnContext(ctx, "auth: validator response undecodable", "provider", string(p.kind), "error", err)
		return nil, domain.Unauthorized(domain.MsgUnauthorized, err)
	}
	if !vr.Success {
		slog.InfoContext(ctx, "auth: token not accepted", "provider", string(p.kind), "err_code", vr.ErrCode)
		return nil, domain.Unauthorized(domain.MsgUnauthorized, fmt.Errorf("validator error code %q", vr.ErrCode))
	}
	if vr.UserInfo.IdentityID == "" {
		return nil, domain.Internal(fmt.Errorf("provider %s: validator response missing identityId", p.kind))
	}
	return &domain.ExternalIdentity{
		SubjectID:   vr.UserInfo.IdentityID,
		DisplayName: vr.UserInfo.Name,
	}, nil
}

// Signature computes the msgAbs parameter: the hex MD5 of the canonical query string
// followed by the shared key. The upstream protocol requires MD5; it authenticates the
// application to the validator and carries no security weight here.
func Signature(appID, remoteAddr, token, appKey string) string {
	canonical := "appId=" + appID + "&remoteAddr=" + remoteAddr + "&token=" + token
	sum := md5.Sum([]byte(canonical + appKey))
	return hex.EncodeToString(sum[:])
}

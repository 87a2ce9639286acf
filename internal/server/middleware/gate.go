package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"pikacloud/backend/internal/policy/engine"
	"pikacloud/backend/internal/security"
)

const (
	bearerPrefix = "bearer "
	legacyPrefix = "token "
)

// Stage is a state of the gate's per-request evaluation.
type Stage int

const (
	StageUnclassified Stage = iota
	StagePathClassified
	StageCredentialExtracted
	StageCredentialVerified
	StageRoleChecked
	StageAdmit
	StageReject
)

func (s Stage) String() string {
	switch s {
	case StagePathClassified:
		return "path_classified"
	case StageCredentialExtracted:
		return "credential_extracted"
	case StageCredentialVerified:
		return "credential_verified"
	case StageRoleChecked:
		return "role_checked"
	case StageAdmit:
		return "admit"
	case StageReject:
		return "reject"
	default:
		return "unclassified"
	}
}

// ClaimVerifier validates a session claim's signature and expiry.
type ClaimVerifier interface {
	Validate(token string) (*security.SessionClaims, error)
}

// Decision is the terminal state of one evaluation. FailedAt is the stage that rejected,
// and Claims is set only on Admit.
type Decision struct {
	Final    Stage
	FailedAt Stage
	Claims   *security.SessionClaims
}

func (d Decision) Admitted() bool { return d.Final == StageAdmit }

// Gate admits requests carrying a valid session claim whose roles the route policy accepts.
// Every rejection is an empty 401; the failing stage is only logged.
type Gate struct {
	authPrefix string
	verifier   ClaimVerifier
	policy     engine.Evaluator
}

// NewGate returns a gate. Requests under authPrefix are always rejected, so auth routes
// must be mounted outside it.
func NewGate(authPrefix string, verifier ClaimVerifier, policy engine.Evaluator) *Gate {
	return &Gate{
		authPrefix: strings.TrimRight(authPrefix, "/"),
		verifier:   verifier,
		policy:     policy,
	}
}

// Evaluate runs the stages for r in order and stops at the first failure.
func (g *Gate) Evaluate(r *http.Request) Decision {
	path := r.URL.Path
	if g.authPrefix != "" && strings.HasPrefix(path, g.authPrefix) {
		return reject(StagePathClassified)
	}

	token := ExtractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return reject(StageCredentialExtracted)
	}

	claims, err := g.verifier.Validate(token)
	if err != nil {
		return reject(StageCredentialVerified)
	}

	allowed, err := g.policy.Allow(r.Context(), engine.Input{Path: path, Method: r.Method, Roles: claims.Roles})
	if err != nil {
		slog.WarnContext(r.Context(), "gate: policy evaluation failed", "path", path, "error", err)
		return reject(StageRoleChecked)
	}
	if !allowed {
		return reject(StageRoleChecked)
	}
	return Decision{Final: StageAdmit, Claims: claims}
}

func reject(at Stage) Decision {
	return Decision{Final: StageReject, FailedAt: at}
}

// Middleware admits requests into next with the caller's identity in context, or writes an
// empty 401 without calling next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r)
		if !d.Admitted() {
			slog.DebugContext(r.Context(), "gate: rejected", "path", r.URL.Path, "stage", d.FailedAt.String())
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := WithIdentity(r.Context(), d.Claims.UserID, d.Claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractBearer returns the credential from an Authorization header value. The legacy
// "Token " scheme is normalized to "Bearer "; anything else yields "".
func ExtractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) >= len(legacyPrefix) && strings.EqualFold(v[:len(legacyPrefix)], legacyPrefix) {
		v = "Bearer " + v[len(legacyPrefix):]
	}
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

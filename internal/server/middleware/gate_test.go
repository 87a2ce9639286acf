package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pikacloud/backend/internal/policy/engine"
	"pikacloud/backend/internal/security"
)

type failingPolicy struct{}

func (failingPolicy) Allow(context.Context, engine.Input) (bool, error) {
	return false, errors.New("policy unavailable")
}

func newTestGate(t *testing.T) (*Gate, *security.TokenProvider) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	policy, err := engine.NewOPAEvaluator(context.Background(), []string{"/api/admin", "/admin"}, "")
	require.NoError(t, err)
	return NewGate("/api/auth", tokens, policy), tokens
}

func issue(t *testing.T, tokens *security.TokenProvider, roles ...string) string {
	t.Helper()
	tok, _, err := tokens.Issue("u1", roles)
	require.NoError(t, err)
	return tok
}

func TestGate_Evaluate(t *testing.T) {
	gate, tokens := newTestGate(t)
	member := issue(t, tokens, "member")
	admin := issue(t, tokens, "member", "admin")

	tests := []struct {
		name     string
		path     string
		auth     string
		want     Stage
		failedAt Stage
	}{
		{"auth route rejected even with admin claim", "/api/auth/login", "Bearer " + admin, StageReject, StagePathClassified},
		{"auth prefix itself", "/api/auth", "Bearer " + admin, StageReject, StagePathClassified},
		{"missing header", "/api/user/me", "", StageReject, StageCredentialExtracted},
		{"unknown scheme", "/api/user/me", "Basic abc", StageReject, StageCredentialExtracted},
		{"empty bearer", "/api/user/me", "Bearer ", StageReject, StageCredentialExtracted},
		{"garbage token", "/api/user/me", "Bearer not-a-jwt", StageReject, StageCredentialVerified},
		{"member on user route", "/api/user/me", "Bearer " + member, StageAdmit, StageUnclassified},
		{"legacy token prefix", "/api/user/me", "Token " + member, StageAdmit, StageUnclassified},
		{"member on admin route", "/api/admin/x", "Bearer " + member, StageReject, StageRoleChecked},
		{"admin on admin route", "/api/admin/x", "Bearer " + admin, StageAdmit, StageUnclassified},
		{"member on legacy admin route", "/admin/x", "Bearer " + member, StageReject, StageRoleChecked},
		{"auth prefix matches plainly", "/api/authz", "Bearer " + member, StageReject, StagePathClassified},
		{"auth prefix matches sibling", "/api/authx", "Bearer " + admin, StageReject, StagePathClassified},
		{"member on admin sibling", "/api/adminx", "Bearer " + member, StageReject, StageRoleChecked},
		{"admin on admin sibling", "/api/adminx", "Bearer " + admin, StageAdmit, StageUnclassified},
		{"member on legacy admin sibling", "/adminpanel", "Bearer " + member, StageReject, StageRoleChecked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			d := gate.Evaluate(req)
			assert.Equal(t, tt.want, d.Final)
			assert.Equal(t, tt.failedAt, d.FailedAt)
			if d.Admitted() {
				assert.Equal(t, "u1", d.Claims.UserID)
			} else {
				assert.Nil(t, d.Claims)
			}
		})
	}
}

func TestGate_ExpiredClaimRejected(t *testing.T) {
	gate, _ := newTestGate(t)
	past := time.Now().Add(-time.Hour)
	claims := security.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
		UserID: "u1",
		Roles:  []string{"admin"},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(security.TestSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	d := gate.Evaluate(req)
	assert.Equal(t, StageCredentialVerified, d.FailedAt)
}

func TestGate_PolicyErrorRejects(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	gate := NewGate("/api/auth", tokens, failingPolicy{})
	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, "admin"))
	assert.Equal(t, StageRoleChecked, gate.Evaluate(req).FailedAt)
}

func TestGate_Middleware(t *testing.T) {
	gate, tokens := newTestGate(t)
	var called bool
	var gotUser string
	var gotRoles []string
	h := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUser, _ = GetUserID(r.Context())
		gotRoles = GetRoles(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/x", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, "member"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.False(t, called)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/x", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, "member", "admin"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, called)
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, []string{"member", "admin"}, gotRoles)
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearer("bearer   abc "))
	assert.Equal(t, "abc", ExtractBearer("Token abc"))
	assert.Equal(t, "", ExtractBearer("Tokenabc"))
	assert.Equal(t, "", ExtractBearer(""))
}

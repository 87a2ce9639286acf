package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/identity/federation"
	"pikacloud/backend/internal/identity/repository"
	userdomain "pikacloud/backend/internal/user/domain"
)

type validatorStub struct {
	status   int
	body     string
	calls    atomic.Int32
	lastVals atomic.Value
}

func (v *validatorStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.calls.Add(1)
		v.lastVals.Store(r.URL.Query())
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.WriteHeader(v.status)
		fmt.Fprint(w, v.body)
	}
}

const okBody = `{"success":true,"errCode":"0","errMsg":"","userInfo":{"identityId":"2100012345","name":"Zhang San","dept":"EECS"}}`

func newIAAA(t *testing.T, stub *validatorStub) (*ValidatorProvider, *repository.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	store := repository.NewMemoryStore()
	p := NewIAAAProvider(ValidatorConfig{
		AppID:       "pikacloud",
		AppKey:      "shared-key",
		ValidateURL: srv.URL + "/iaaa/svc/token/validate.do",
		Timeout:     2 * time.Second,
	}, federation.NewResolver(store, time.Second))
	return p, store
}

func tokenBody(tok string) json.RawMessage {
	b, _ := json.Marshal(tokenPayload{Token: tok})
	return b
}

func TestValidatorProvider_LoginFederates(t *testing.T) {
	stub := &validatorStub{status: http.StatusOK, body: okBody}
	p, store := newIAAA(t, stub)
	ctx := context.Background()

	res, err := p.Login(ctx, tokenBody("tok-1"), "10.0.0.7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(res.Roles) != 1 || res.Roles[0] != "member" {
		t.Errorf("roles = %v", res.Roles)
	}
	u, _ := store.GetUserByUsername(ctx, "2100012345")
	if u == nil || u.ID != res.UserID || u.LoginProvider != userdomain.LoginProviderIAAA || u.Name != "Zhang San" {
		t.Fatalf("stored user = %+v", u)
	}

	q := stub.lastVals.Load().(url.Values)
	if q["appId"][0] != "pikacloud" || q["remoteAddr"][0] != "10.0.0.7" || q["token"][0] != "tok-1" {
		t.Errorf("query = %v", q)
	}
	if q["msgAbs"][0] != Signature("pikacloud", "10.0.0.7", "tok-1", "shared-key") {
		t.Errorf("msgAbs = %q", q["msgAbs"][0])
	}

	again, err := p.Login(ctx, tokenBody("tok-2"), "10.0.0.7")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if again.UserID != res.UserID {
		t.Errorf("second login user = %q, want %q", again.UserID, res.UserID)
	}
}

func TestValidatorProvider_UnsuccessfulValidationCreatesNothing(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"success false", http.StatusOK, `{"success":false,"errCode":"E01","errMsg":"token expired"}`},
		{"server error", http.StatusInternalServerError, `{"success":true}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &validatorStub{status: tt.status, body: tt.body}
			p, store := newIAAA(t, stub)
			_, err := p.Login(context.Background(), tokenBody("tok"), "10.0.0.7")
			if !domain.IsKind(err, domain.KindUnauthorized) {
				t.Fatalf("want Unauthorized, got %v", err)
			}
			if u, _ := store.GetUserByUsername(context.Background(), "2100012345"); u != nil {
				t.Fatal("no user must be created")
			}
		})
	}
}

func TestValidatorProvider_MissingIdentityIsInternal(t *testing.T) {
	stub := &validatorStub{status: http.StatusOK, body: `{"success":true,"userInfo":{"name":"x"}}`}
	p, _ := newIAAA(t, stub)
	_, err := p.Login(context.Background(), tokenBody("tok"), "10.0.0.7")
	if !domain.IsKind(err, domain.KindInternal) {
		t.Fatalf("want Internal, got %v", err)
	}
}

func TestValidatorProvider_InputValidation(t *testing.T) {
	stub := &validatorStub{status: http.StatusOK, body: okBody}
	p, _ := newIAAA(t, stub)
	ctx := context.Background()

	if _, err := p.Login(ctx, json.RawMessage(`{}`), "10.0.0.7"); !domain.IsKind(err, domain.KindBadRequest) {
		t.Errorf("missing token: want BadRequest, got %v", err)
	}
	if _, err := p.Login(ctx, tokenBody("tok"), ""); !domain.IsKind(err, domain.KindUnauthorized) {
		t.Errorf("missing address: want Unauthorized, got %v", err)
	}
	if n := stub.calls.Load(); n != 0 {
		t.Errorf("validator called %d times, want 0", n)
	}
}

func TestValidatorProvider_TransportFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	p := NewIAAAProvider(ValidatorConfig{AppID: "a", AppKey: "k", ValidateURL: "http://127.0.0.1:1/validate.do", Timeout: time.Second},
		federation.NewResolver(store, time.Second))
	_, err := p.Login(context.Background(), tokenBody("tok"), "10.0.0.7")
	if !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("want Unauthorized, got %v", err)
	}
}

func TestValidatorProvider_RegisterIsInternal(t *testing.T) {
	p, _ := newIAAA(t, &validatorStub{status: http.StatusOK, body: okBody})
	if p.SupportsRegistration() {
		t.Error("external providers must not support registration")
	}
	_, err := p.Register(context.Background(), tokenBody("tok"))
	if !domain.IsKind(err, domain.KindInternal) {
		t.Fatalf("want Internal, got %v", err)
	}
}

func TestNewLCPUProvider_ValidateURL(t *testing.T) {
	p := NewLCPUProvider(ValidatorConfig{AppID: "a", AppKey: "k", MFARequired: true}, "https://lcpu.example.org/", nil)
	if p.validateURL != "https://lcpu.example.org/api/oauth/iaaa_compat/svc/token/validate.do" {
		t.Errorf("validateURL = %q", p.validateURL)
	}
	if p.Name() != "lcpu" || !p.MFARequired() {
		t.Errorf("Name/MFA = %q/%v", p.Name(), p.MFARequired())
	}
}

func TestSignature(t *testing.T) {
	got := Signature("app", "1.2.3.4", "tok", "key")
	if got != "422530b9b1813d84ea4013eeb2baa8c0" {
		t.Fatalf("Signature = %q", got)
	}
	if got == Signature("app", "1.2.3.5", "tok", "key") {
		t.Error("signature must cover the client address")
	}
}

func TestRegistry(t *testing.T) {
	pw := NewPasswordProvider(stubLookup{}, stubAccounts{}, nil, false, false)
	iaaa := NewIAAAProvider(ValidatorConfig{}, nil)
	r, err := NewRegistry(pw, iaaa)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "password" || names[1] != "iaaa" {
		t.Errorf("Names = %v", names)
	}
	names[0] = "mutated"
	if r.Names()[0] != "password" {
		t.Error("Names must return a copy")
	}
	if p, ok := r.Get("iaaa"); !ok || p.Name() != "iaaa" {
		t.Error("Get(iaaa) failed")
	}
	if _, ok := r.Get("github"); ok {
		t.Error("Get(unknown) should fail")
	}
	if _, err := NewRegistry(pw, pw); err == nil {
		t.Error("duplicate names should be rejected")
	}
}

// Package provider holds the pluggable authentication providers and the registry that
// selects one by name. Providers are immutable after construction and shared by all requests.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"pikacloud/backend/internal/identity/domain"
)

// Provider authenticates a login payload and, when supported, registers new accounts.
type Provider interface {
	// Name is the identifier clients pass to select this provider.
	Name() string
	// MFARequired reports whether accounts from this provider must complete a second factor.
	MFARequired() bool
	// SupportsRegistration reports whether Register may be called.
	SupportsRegistration() bool
	// Login validates payload and returns the local user and roles. clientAddr is the
	// caller's network address; providers that sign it into upstream requests require it.
	Login(ctx context.Context, payload json.RawMessage, clientAddr string) (*domain.Result, error)
	// Register creates an account from payload. Only valid when SupportsRegistration is true.
	Register(ctx context.Context, payload json.RawMessage) (*domain.Result, error)
}

// Registry is an immutable set of providers keyed by name, in configuration order.
type Registry struct {
	names  []string
	byName map[string]Provider
}

// NewRegistry returns a registry of providers. Names must be unique and non-empty.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("provider: empty name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("provider: duplicate name %q", name)
		}
		r.byName[name] = p
		r.names = append(r.names, name)
	}
	return r, nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// decodePayload unmarshals a provider payload, reporting malformed JSON as BadRequest.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return domain.BadRequest("payload is required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.BadRequest("invalid payload")
	}
	return nil
}

// Package cloud defines the cloud identity provider contract and its error classes.
package cloud

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSendRequest marks a transport failure or a non-success status from the cloud API.
	ErrSendRequest = errors.New("cloud: send request")
	// ErrNotFound marks a successful response missing an expected header or field.
	ErrNotFound = errors.New("cloud: not found")
)

// Account is what a provider returns after creating a cloud user.
type Account struct {
	UserID   string
	Username string
	Password string
}

// Provider manages users of one cloud identity service.
type Provider interface {
	Name() string
	// AdminToken returns a cached or freshly issued administrator token.
	AdminToken(ctx context.Context) (string, error)
	// UserToken returns a cached or freshly issued token for the given cloud credentials.
	UserToken(ctx context.Context, username, password string) (string, error)
	CreateUser(ctx context.Context, username string) (*Account, error)
	DeleteUser(ctx context.Context, userID string) error
	UserExists(ctx context.Context, userID string) (bool, error)
	// Warm refreshes the admin token and reference lookups in the shared cache.
	Warm(ctx context.Context) error
}

// Registry holds the enabled cloud providers by name. It is immutable after construction.
type Registry struct {
	byName map[string]Provider
	names  []string
}

// NewRegistry returns a registry. Duplicate names are rejected.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.byName[p.Name()]; dup {
			return nil, fmt.Errorf("cloud: duplicate provider %q", p.Name())
		}
		r.byName[p.Name()] = p
		r.names = append(r.names, p.Name())
	}
	return r, nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// All returns the providers in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

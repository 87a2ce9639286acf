package cloud

import (
	"context"
	"testing"
)

type namedProvider struct{ name string }

func (p namedProvider) Name() string                                            { return p.name }
func (namedProvider) AdminToken(context.Context) (string, error)                { return "", nil }
func (namedProvider) UserToken(context.Context, string, string) (string, error) { return "", nil }
func (namedProvider) CreateUser(context.Context, string) (*Account, error)      { return nil, nil }
func (namedProvider) DeleteUser(context.Context, string) error                  { return nil }
func (namedProvider) UserExists(context.Context, string) (bool, error)          { return false, nil }
func (namedProvider) Warm(context.Context) error                                { return nil }

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(namedProvider{"openstack"}, namedProvider{"other"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, ok := r.Get("openstack"); !ok {
		t.Error("openstack should be registered")
	}
	if _, ok := r.Get("aws"); ok {
		t.Error("aws should not be registered")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "openstack" || names[1] != "other" {
		t.Errorf("Names = %v", names)
	}
	names[0] = "mutated"
	if r.Names()[0] != "openstack" {
		t.Error("Names must return a copy")
	}
	if len(r.All()) != 2 {
		t.Errorf("All = %d providers", len(r.All()))
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	if _, err := NewRegistry(namedProvider{"openstack"}, namedProvider{"openstack"}); err == nil {
		t.Fatal("duplicate provider names should be rejected")
	}
}

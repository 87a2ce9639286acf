// Package repository is the relational store seen by the identity layer: users, roles and
// user-role assignments, with a transaction scope for create-then-link sequences.
package repository

import (
	"context"

	roledomain "pikacloud/backend/internal/role/domain"
	userdomain "pikacloud/backend/internal/user/domain"
)

// Store defines the typed operations the identity layer runs against persistence.
// Getters return (nil, nil) when the row does not exist. Creates report uniqueness
// violations as db.ErrDuplicate.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*userdomain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*userdomain.User, error)
	CreateUser(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error

	GetRoleByName(ctx context.Context, name string) (*roledomain.Role, error)
	CreateRole(ctx context.Context, r *roledomain.Role) error
	CreateUserRole(ctx context.Context, a *roledomain.Assignment) error
	ListUserRoles(ctx context.Context, userID string) ([]*roledomain.Assignment, error)
	ListRolesByIDs(ctx context.Context, ids []string) ([]*roledomain.Role, error)

	// InTx runs fn against a Store bound to one transaction. The transaction commits when
	// fn returns nil and rolls back otherwise. Calling InTx on a bound Store reuses its transaction.
	InTx(ctx context.Context, fn func(Store) error) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

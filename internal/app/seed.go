package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pikacloud/backend/internal/db"
	"pikacloud/backend/internal/identity/federation"
	"pikacloud/backend/internal/identity/repository"
	"pikacloud/backend/internal/security"
	roledomain "pikacloud/backend/internal/role/domain"
	userdomain "pikacloud/backend/internal/user/domain"
)

// SeedRoles creates the member and admin roles. Safe to run repeatedly.
func SeedRoles(ctx context.Context, store repository.Store) error {
	now := time.Now().UTC()
	for _, name := range []string{roledomain.RoleMember, roledomain.RoleAdmin} {
		if _, err := federation.EnsureRole(ctx, store, name, now, uuid.NewString); err != nil {
			return err
		}
	}
	return nil
}

// SeedAdmin creates a local-password account holding the member and admin roles.
// An existing account with that username only gains the admin role; its password is kept.
func SeedAdmin(ctx context.Context, store repository.Store, hasher *security.Hasher, username, password string) (string, error) {
	now := time.Now().UTC()
	var userID string
	err := store.InTx(ctx, func(tx repository.Store) error {
		u, err := tx.GetUserByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if u == nil {
			hash, err := hasher.Hash([]byte(password))
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			u = &userdomain.User{
				ID:            uuid.NewString(),
				Username:      username,
				LoginProvider: userdomain.LoginProviderPassword,
				PasswordHash:  hash,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := u.Validate(); err != nil {
				return err
			}
			if err := tx.CreateUser(ctx, u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
		}
		userID = u.ID
		if err := federation.AssignDefaultRole(ctx, tx, u.ID, now, uuid.NewString); err != nil {
			return err
		}
		admin, err := federation.EnsureRole(ctx, tx, roledomain.RoleAdmin, now, uuid.NewString)
		if err != nil {
			return err
		}
		err = tx.CreateUserRole(ctx, &roledomain.Assignment{ID: uuid.NewString(), UserID: u.ID, RoleID: admin.ID, CreatedAt: now})
		if err != nil && !errors.Is(err, db.ErrDuplicate) {
			return fmt.Errorf("assign admin role: %w", err)
		}
		return nil
	})
	return userID, err
}

// Package federation resolves an authenticated identity to a local user and its roles,
// creating the user and its default role assignment on first contact.
package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"pikacloud/backend/internal/db"
	"pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/identity/repository"
	roledomain "pikacloud/backend/internal/role/domain"
	userdomain "pikacloud/backend/internal/user/domain"
)

// DefaultStoreTimeout bounds one federation sequence when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// Resolver runs the federation algorithm against a Store. It holds no per-call state
// and is safe for concurrent use.
type Resolver struct {
	store   repository.Store
	timeout time.Duration
	nowF    func() time.Time
	newID   func() string
}

// NewResolver returns a Resolver. timeout bounds each store sequence; non-positive uses DefaultStoreTimeout.
func NewResolver(store repository.Store, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Resolver{
		store:   store,
		timeout: timeout,
		nowF:    time.Now,
		newID:   uuid.NewString,
	}
}

// ResolveOrCreate returns the local user for the external identity, creating it with the
// member role when absent. Store work is detached from ctx cancellation so a client
// disconnect never leaves the create-then-assign sequence half done.
func (r *Resolver) ResolveOrCreate(ctx context.Context, provider userdomain.LoginProvider, ident domain.ExternalIdentity) (*domain.Result, error) {
	if ident.SubjectID == "" {
		return nil, domain.Internal(errors.New("federation: empty identity key"))
	}
	if provider == userdomain.LoginProviderPassword || !provider.Valid() {
		return nil, domain.Internal(fmt.Errorf("federation: provider %q cannot federate", provider))
	}
	ctx, cancel := r.detach(ctx)
	defer cancel()

	if res, err := r.lookup(ctx, provider, ident.SubjectID); res != nil || err != nil {
		return res, err
	}

	now := r.nowF().UTC()
	u := &userdomain.User{
		ID:            r.newID(),
		Username:      ident.SubjectID,
		LoginProvider: provider,
		Name:          ident.DisplayName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	roles, err := r.provision(ctx, u)
	if err == nil {
		slog.InfoContext(ctx, "federation: account created", "provider", string(provider), "user_id", u.ID)
		return &domain.Result{UserID: u.ID, Roles: roles}, nil
	}
	if !errors.Is(err, db.ErrDuplicate) {
		return nil, domain.Internal(err)
	}

	// A concurrent first login won the insert; read its row once.
	res, lerr := r.lookup(ctx, provider, ident.SubjectID)
	if lerr != nil {
		return nil, lerr
	}
	if res == nil {
		return nil, domain.Internal(fmt.Errorf("federation: user missing after duplicate insert: %w", err))
	}
	return res, nil
}

// Provision creates u and links it to the member role in one transaction. A username
// collision is returned as db.ErrDuplicate; other store failures are returned unwrapped.
func (r *Resolver) Provision(ctx context.Context, u *userdomain.User) ([]string, error) {
	ctx, cancel := r.detach(ctx)
	defer cancel()
	return r.provision(ctx, u)
}

// RolesOf returns the role names assigned to userID, sorted.
func (r *Resolver) RolesOf(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := r.detach(ctx)
	defer cancel()
	return rolesOf(ctx, r.store, userID)
}

// lookup returns the existing account's result, nil when absent. A read failure is
// treated as absent so the caller falls through to creation.
func (r *Resolver) lookup(ctx context.Context, provider userdomain.LoginProvider, key string) (*domain.Result, error) {
	u, err := r.store.GetUserByUsername(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "federation: user lookup failed, treating as not found", "provider", string(provider), "error", err)
		return nil, nil
	}
	if u == nil {
		return nil, nil
	}
	if u.LoginProvider != provider {
		// An identity key only resolves to accounts created by the same provider.
		slog.WarnContext(ctx, "federation: identity key belongs to another provider", "provider", string(provider), "owner", string(u.LoginProvider), "user_id", u.ID)
		return nil, domain.Unauthorized(domain.MsgUnauthorized, nil)
	}
	roles, err := rolesOf(ctx, r.store, u.ID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	return &domain.Result{UserID: u.ID, Roles: roles}, nil
}

func (r *Resolver) provision(ctx context.Context, u *userdomain.User) ([]string, error) {
	err := r.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		return AssignDefaultRole(ctx, tx, u.ID, u.CreatedAt, r.newID)
	})
	if err != nil {
		return nil, err
	}
	return []string{roledomain.RoleMember}, nil
}

func (r *Resolver) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
}

// AssignDefaultRole links userID to the member role, creating the role when absent.
// Run it inside the transaction that created the user.
func AssignDefaultRole(ctx context.Context, tx repository.Store, userID string, now time.Time, newID func() string) error {
	role, err := EnsureRole(ctx, tx, roledomain.RoleMember, now, newID)
	if err != nil {
		return err
	}
	err = tx.CreateUserRole(ctx, &roledomain.Assignment{
		ID:        newID(),
		UserID:    userID,
		RoleID:    role.ID,
		CreatedAt: now,
	})
	if err != nil && !errors.Is(err, db.ErrDuplicate) {
		return fmt.Errorf("assign role %s: %w", role.Name, err)
	}
	return nil
}

// EnsureRole returns the role called name, creating it when absent. A concurrent
// creator winning the insert is resolved by reading its row.
func EnsureRole(ctx context.Context, store repository.Store, name string, now time.Time, newID func() string) (*roledomain.Role, error) {
	role, err := store.GetRoleByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get role %s: %w", name, err)
	}
	if role != nil {
		return role, nil
	}
	role = &roledomain.Role{ID: newID(), Name: name, CreatedAt: now}
	err = store.CreateRole(ctx, role)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, db.ErrDuplicate) {
		return nil, fmt.Errorf("create role %s: %w", name, err)
	}
	role, err = store.GetRoleByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get role %s: %w", name, err)
	}
	if role == nil {
		return nil, fmt.Errorf("role %s missing after duplicate insert", name)
	}
	return role, nil
}

func rolesOf(ctx context.Context, store repository.Store, userID string) ([]string, error) {
	assignments, err := store.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	if len(assignments) == 0 {
		return []string{}, nil
	}
	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.RoleID
	}
	roles, err := store.ListRolesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

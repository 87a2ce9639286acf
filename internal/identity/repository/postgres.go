package repository

import (
	"context"
	"database/sql"
	"errors"

	"pikacloud/backend/internal/db"
	roledomain "pikacloud/backend/internal/role/domain"
	rolerepo "pikacloud/backend/internal/role/repository"
	userdomain "pikacloud/backend/internal/user/domain"
	userrepo "pikacloud/backend/internal/user/repository"
)

// PostgresStore implements Store over the user and role repositories.
type PostgresStore struct {
	conn  *sql.DB // nil when bound to a transaction
	users userrepo.Repository
	roles rolerepo.Repository
}

// NewPostgresStore returns a Store backed by conn.
func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{
		conn:  conn,
		users: userrepo.NewPostgresRepository(conn),
		roles: rolerepo.NewPostgresRepository(conn),
	}
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*userdomain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *userdomain.User) error {
	return s.users.Create(ctx, u)
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return s.users.UpdatePasswordHash(ctx, userID, passwordHash)
}

func (s *PostgresStore) GetRoleByName(ctx context.Context, name string) (*roledomain.Role, error) {
	return s.roles.GetByName(ctx, name)
}

func (s *PostgresStore) CreateRole(ctx context.Context, r *roledomain.Role) error {
	return s.roles.Create(ctx, r)
}

func (s *PostgresStore) CreateUserRole(ctx context.Context, a *roledomain.Assignment) error {
	return s.roles.CreateAssignment(ctx, a)
}

func (s *PostgresStore) ListUserRoles(ctx context.Context, userID string) ([]*roledomain.Assignment, error) {
	return s.roles.ListAssignmentsByUser(ctx, userID)
}

func (s *PostgresStore) ListRolesByIDs(ctx context.Context, ids []string) ([]*roledomain.Role, error) {
	return s.roles.ListByIDs(ctx, ids)
}

// InTx runs fn inside one database transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.conn == nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		return fn(&PostgresStore{
			users: userrepo.NewPostgresRepository(tx),
			roles: rolerepo.NewPostgresRepository(tx),
		})
	})
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("store: ping inside transaction")
	}
	return s.conn.PingContext(ctx)
}

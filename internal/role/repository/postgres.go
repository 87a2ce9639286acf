package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pikacloud/backend/internal/db"
	"pikacloud/backend/internal/role/domain"
)

type PostgresRepository struct {
	conn db.DBTX
}

// NewPostgresRepository returns a role repository that uses conn (a *sql.DB or *sql.Tx) for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// GetByName returns the role with the given name, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.conn.QueryRowContext(ctx, `SELECT id, name, created_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// Create persists the role. ON CONFLICT DO NOTHING keeps a concurrent creator's
// transaction usable; the lost race is reported as db.ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, role *domain.Role) error {
	var id string
	err := r.conn.QueryRowContext(ctx,
		`INSERT INTO roles (id, name, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING RETURNING id`,
		role.ID, role.Name, role.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.ErrDuplicate
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// CreateAssignment persists the user-role link. The assignment must have ID set.
func (r *PostgresRepository) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO user_roles (id, user_id, role_id, created_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.UserID, a.RoleID, a.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return db.ErrDuplicate
		}
		return fmt.Errorf("create user role: %w", err)
	}
	return nil
}

// ListAssignmentsByUser returns all role assignments of userID, oldest first.
func (r *PostgresRepository) ListAssignmentsByUser(ctx context.Context, userID string) ([]*domain.Assignment, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, user_id, role_id, created_at FROM user_roles WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListByIDs returns the roles whose id is in ids. Unknown ids are skipped.
func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, name, created_at FROM roles WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &role)
	}
	return out, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pikacloud/backend/internal/db"
	"pikacloud/backend/internal/user/domain"
)

const userColumns = `id, username, login_provider, name, email, password_hash, created_at, updated_at`

type PostgresRepository struct {
	conn db.DBTX
}

// NewPostgresRepository returns a user repository that uses conn (a *sql.DB or *sql.Tx) for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByUsername returns the user with the given username, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
// A username collision is reported as db.ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	hash := sql.NullString{String: u.PasswordHash, Valid: u.PasswordHash != ""}
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, login_provider, name, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, string(u.LoginProvider), u.Name, u.Email, hash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return db.ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the password hash of user id. Missing users are not an error.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u        domain.User
		provider string
		hash     sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &provider, &u.Name, &u.Email, &hash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.LoginProvider = domain.LoginProvider(provider)
	u.PasswordHash = hash.String
	return &u, nil
}

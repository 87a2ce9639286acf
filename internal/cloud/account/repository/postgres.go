package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pikacloud/backend/internal/cloud/account/domain"
	"pikacloud/backend/internal/db"
)

const cloudUserColumns = `id, user_id, cloud_provider, cloud_user_id, cloud_username, cloud_password, created_at`

type PostgresRepository struct {
	conn db.DBTX
}

// NewPostgresRepository returns a cloud user repository that uses conn for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// Create persists cu. A second link for the same user and provider is reported as db.ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, cu *domain.CloudUser) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO cloud_users (`+cloudUserColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cu.ID, cu.UserID, cu.Provider, cu.CloudUserID, cu.CloudUsername, cu.CloudPassword, cu.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return db.ErrDuplicate
		}
		return fmt.Errorf("create cloud user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByUser(ctx context.Context, userID, provider string) (*domain.CloudUser, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+cloudUserColumns+` FROM cloud_users WHERE user_id = $1 AND cloud_provider = $2`,
		userID, provider,
	)
	return scanCloudUser(row)
}

func (r *PostgresRepository) GetByCloudUserID(ctx context.Context, provider, cloudUserID string) (*domain.CloudUser, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+cloudUserColumns+` FROM cloud_users WHERE cloud_provider = $1 AND cloud_user_id = $2`,
		provider, cloudUserID,
	)
	return scanCloudUser(row)
}

// Delete removes the link with id. Missing rows are not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.conn.ExecContext(ctx, `DELETE FROM cloud_users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete cloud user: %w", err)
	}
	return nil
}

func scanCloudUser(row *sql.Row) (*domain.CloudUser, error) {
	var cu domain.CloudUser
	err := row.Scan(&cu.ID, &cu.UserID, &cu.Provider, &cu.CloudUserID, &cu.CloudUsername, &cu.CloudPassword, &cu.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cu, nil
}

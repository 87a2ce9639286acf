package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pikacloud/backend/internal/cloud/account/domain"
	"pikacloud/backend/internal/db"
)

var cloudUserCols = []string{"id", "user_id", "cloud_provider", "cloud_user_id", "cloud_username", "cloud_password", "created_at"}

func TestPostgresRepository_Create(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	cu := &domain.CloudUser{ID: "c1", UserID: "u1", Provider: "openstack", CloudUserID: "os-1", CloudUsername: "alice", CloudPassword: "pw", CreatedAt: now}

	mock.ExpectExec("INSERT INTO cloud_users").
		WithArgs("c1", "u1", "openstack", "os-1", "alice", "pw", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, NewPostgresRepository(conn).Create(context.Background(), cu))

	mock.ExpectExec("INSERT INTO cloud_users").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err = NewPostgresRepository(conn).Create(context.Background(), cu)
	assert.True(t, errors.Is(err, db.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByUser(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM cloud_users WHERE user_id = \\$1 AND cloud_provider = \\$2").
		WithArgs("u1", "openstack").
		WillReturnRows(sqlmock.NewRows(cloudUserCols).AddRow("c1", "u1", "openstack", "os-1", "alice", "pw", now))

	cu, err := NewPostgresRepository(conn).GetByUser(context.Background(), "u1", "openstack")
	require.NoError(t, err)
	require.NotNil(t, cu)
	assert.Equal(t, "os-1", cu.CloudUserID)
	assert.Equal(t, "pw", cu.CloudPassword)
}

func TestPostgresRepository_GetByCloudUserID_NotFound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT (.+) FROM cloud_users WHERE cloud_provider").
		WithArgs("openstack", "missing").
		WillReturnError(sql.ErrNoRows)

	cu, err := NewPostgresRepository(conn).GetByCloudUserID(context.Background(), "openstack", "missing")
	assert.NoError(t, err)
	assert.Nil(t, cu)
}

func TestPostgresRepository_Delete(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("DELETE FROM cloud_users").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, NewPostgresRepository(conn).Delete(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

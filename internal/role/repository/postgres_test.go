package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pikacloud/backend/internal/db"
	"pikacloud/backend/internal/role/domain"
)

// passthroughConverter lets slice arguments reach the mock the way pgx's stdlib driver accepts them.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) { return v, nil }

func TestPostgresRepository_GetByName(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, created_at FROM roles WHERE name = \\$1").
		WithArgs("member").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).AddRow("r1", "member", now))

	r, err := NewPostgresRepository(conn).GetByName(context.Background(), "member")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "r1", r.ID)
}

func TestPostgresRepository_GetByName_NotFound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT id, name, created_at FROM roles").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}))

	r, err := NewPostgresRepository(conn).GetByName(context.Background(), "member")
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestPostgresRepository_Create(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO roles (.+) ON CONFLICT \\(name\\) DO NOTHING RETURNING id").
		WithArgs("r1", "member", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r1"))

	err = NewPostgresRepository(conn).Create(context.Background(), &domain.Role{ID: "r1", Name: "member", CreatedAt: now})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_Conflict(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("INSERT INTO roles").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err = NewPostgresRepository(conn).Create(context.Background(), &domain.Role{ID: "r2", Name: "member"})
	assert.ErrorIs(t, err, db.ErrDuplicate)
}

func TestPostgresRepository_CreateAssignment(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs("a1", "u1", "r1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_roles").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec("INSERT INTO user_roles").
		WillReturnError(errors.New("fk violation"))

	repo := NewPostgresRepository(conn)
	a := &domain.Assignment{ID: "a1", UserID: "u1", RoleID: "r1", CreatedAt: time.Now()}
	assert.NoError(t, repo.CreateAssignment(context.Background(), a))
	assert.ErrorIs(t, repo.CreateAssignment(context.Background(), a), db.ErrDuplicate)
	err = repo.CreateAssignment(context.Background(), a)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, db.ErrDuplicate)
}

func TestPostgresRepository_ListAssignmentsByUser(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, user_id, role_id, created_at FROM user_roles WHERE user_id = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "role_id", "created_at"}).
			AddRow("a1", "u1", "r1", now).
			AddRow("a2", "u1", "r2", now))

	list, err := NewPostgresRepository(conn).ListAssignmentsByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[1].RoleID)
}

func TestPostgresRepository_ListByIDs(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, created_at FROM roles WHERE id = ANY\\(\\$1\\)").
		WithArgs([]string{"r1", "r2"}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("r2", "admin", now).
			AddRow("r1", "member", now))

	roles, err := NewPostgresRepository(conn).ListByIDs(context.Background(), []string{"r1", "r2"})
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "admin", roles[0].Name)
}

func TestPostgresRepository_ListByIDs_Empty(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	roles, err := NewPostgresRepository(conn).ListByIDs(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pikacloud/backend/internal/audit/domain"
)

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Now().UTC()
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, r.Create(ctx, &domain.AuditLog{ID: id, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, r.Create(ctx, &domain.AuditLog{ID: "b1", UserID: "u2", CreatedAt: base}))

	list, err := r.List(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a3", list[0].ID)
	assert.Equal(t, "a2", list[1].ID)

	list, _ = r.List(ctx, "u1", 2, 2)
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)

	all, _ := r.List(ctx, "", 0, 0)
	assert.Len(t, all, 4)

	none, _ := r.List(ctx, "u1", 10, 10)
	assert.Empty(t, none)
}

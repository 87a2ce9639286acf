package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pikacloud/backend/internal/audit/domain"
	"pikacloud/backend/internal/audit/repository"
)

func TestList(t *testing.T) {
	repo := repository.NewMemoryRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), &domain.AuditLog{ID: "a1", UserID: "u1", Action: domain.ActionLoginSuccess, Resource: "password", IP: "10.0.0.1", CreatedAt: now}))
	require.NoError(t, repo.Create(context.Background(), &domain.AuditLog{ID: "a2", Action: domain.ActionLoginFailure, Resource: "password", IP: "10.0.0.2", CreatedAt: now.Add(time.Second)}))
	h := NewHandler(repo)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/admin/audit?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "a2", resp.Entries[0].ID)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/admin/audit?user_id=u1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "u1", resp.Entries[0].UserID)
}

func TestList_BadParams(t *testing.T) {
	h := NewHandler(repository.NewMemoryRepository())
	for _, q := range []string{"limit=0", "limit=500", "limit=x", "offset=-1"} {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/admin/audit?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

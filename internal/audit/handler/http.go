// Package handler lists audit log entries for administrators.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pikacloud/backend/internal/audit/repository"
	iddomain "pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/server/respond"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Handler struct {
	repo repository.Repository
}

func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /audit?user_id=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		respond.FromError(w, r, iddomain.BadRequest("limit must be between 1 and 200"))
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		respond.FromError(w, r, iddomain.BadRequest("offset must be non-negative"))
		return
	}
	logs, err := h.repo.List(r.Context(), q.Get("user_id"), limit, offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit: list failed", "error", err)
		respond.FromError(w, r, iddomain.Internal(err))
		return
	}
	out := make([]entry, 0, len(logs))
	for _, a := range logs {
		out = append(out, entry{
			ID:        a.ID,
			UserID:    a.UserID,
			Action:    a.Action,
			Resource:  a.Resource,
			IP:        a.IP,
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

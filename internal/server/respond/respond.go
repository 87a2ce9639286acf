// Package respond writes JSON responses and maps classified errors to statuses.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pikacloud/backend/internal/identity/domain"
)

// JSON writes v with status. Encoding failures are logged; headers are already sent.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("respond: encode body", "error", err)
	}
}

// Error writes {"error": msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}

// FromError maps err to a status and generic message. Unclassified errors are logged and
// reported as internal.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		slog.ErrorContext(r.Context(), "http: unhandled error", "path", r.URL.Path, "error", err)
		ae = domain.Internal(err)
	}
	Error(w, ae.HTTPStatus(), ae.Message)
}

// DecodeJSON decodes a request body of at most 1 MiB into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return domain.BadRequest("invalid request body")
	}
	return nil
}

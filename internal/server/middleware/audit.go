package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pikacloud/backend/internal/audit"
)

// Audit records one event per mutating request that reached a handler. It must run inside
// the gate so the caller's identity is known, and inside chi routing so the route pattern is.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if logger == nil || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				return
			}
			pattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			ar := audit.ParseRoute(r.Method, pattern)
			userID, _ := GetUserID(r.Context())
			meta := "status=" + strconv.Itoa(sw.status)
			if p := chi.URLParam(r, "provider"); p != "" {
				meta = "provider=" + p + " " + meta
			}
			logger.LogEvent(r.Context(), userID, ar.Action, ar.Resource, meta)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

package daemon

import (
	"net/http"
	"strings"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument wraps an HTTP handler with audit logging. If audit is nil,
// the handler is returned unchanged.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.audit == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.audit.APIAccess(r.Method, sanitizePath(r.URL.Path), rec.status)
	})
}

// sanitizePath normalizes a request path for audit logging. None of the
// current routes carry a dynamic segment (track/untrack/connect/fetch
// all take their target in the JSON body, not the URL), so today it only
// strips trailing slashes; it exists as the hook a future path-parameterized
// route (e.g. a per-peer DELETE) would extend instead of logging raw
// high-cardinality paths.
func sanitizePath(path string) string {
	if trimmed := strings.TrimRight(path, "/"); trimmed != "" {
		return trimmed
	}
	return path
}

package daemon

import "log/slog"

// AuditLogger writes structured audit events for security-relevant
// daemon actions, under an "audit" group so they're easy to filter out
// of ordinary operational logs. Every method is nil-safe so callers
// never need a nil check at the call site.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger writing through handler.
func NewAuditLogger(handler slog.Handler) *AuditLogger {
	return &AuditLogger{logger: slog.New(handler).WithGroup("audit")}
}

// APIAccess logs one HTTP request handled by the daemon's control API.
func (a *AuditLogger) APIAccess(method, path string, status int) {
	if a == nil {
		return
	}
	a.logger.Info("api_access", "method", method, "path", path, "status", status)
}

// TrackingChange logs a project being tracked or untracked via the API.
func (a *AuditLogger) TrackingChange(action, projId string) {
	if a == nil {
		return
	}
	a.logger.Info("tracking_change", "action", action, "project", projId)
}

package web

import (
	"net/http"
	"slices"
	"strconv"

	auditStore "confreg/internal/adapters/storage/audit"
	auditDomain "confreg/internal/domain/audit"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// handleAdminAuditTrail renders the admin access log (GET /admin/audit)
// PRE: Client must hold a valid admin session
// POST: Renders the newest events matching action, client_id and success
func handleAdminAuditTrail(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	if app.AuditLog == nil {
		http.Error(w, "audit log unavailable", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	filter := auditStore.Filter{}

	if action := auditDomain.Action(q.Get("action")); slices.Contains(auditDomain.Actions, action) {
		filter.Action = &action
	}
	if clientID := q.Get("client_id"); clientID != "" {
		filter.ClientID = &clientID
	}
	if s := q.Get("success"); s != "" {
		if success, err := strconv.ParseBool(s); err == nil {
			filter.Success = &success
		}
	}

	limit := defaultAuditLimit
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= maxAuditLimit {
		limit = l
	}

	events, err := app.AuditLog.List(r.Context(), filter, limit)
	if err != nil {
		internalError(w, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, map[string]any{"events": events, "limit": limit})
		return
	}
	renderTemplate(w, r, http.StatusOK, "admin_audit.html", "Access Log", true, map[string]any{
		"Events":   events,
		"Action":   q.Get("action"),
		"ClientID": q.Get("client_id"),
		"Success":  q.Get("success"),
		"Limit":    limit,
		"Actions":  auditDomain.Actions,
	})
}

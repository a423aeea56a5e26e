package audit

import (
	"encoding/json"
	"time"
)

// Action is the action_type recorded for an admin access attempt.
type Action string

const (
	ActionDataFetch        Action = "data_fetch"
	ActionDataFetchFailed  Action = "data_fetch_failed"
	ActionAdminLogin       Action = "admin_login"
	ActionAdminLoginFailed Action = "admin_login_failed"
	ActionAdminLogout      Action = "admin_logout"
	ActionDataExport       Action = "data_export"
)

// Actions lists every recorded action type.
var Actions = []Action{
	ActionDataFetch,
	ActionDataFetchFailed,
	ActionAdminLogin,
	ActionAdminLoginFailed,
	ActionAdminLogout,
	ActionDataExport,
}

// Event is a single admin access log entry.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    Action         `json:"action_type"`
	Success   bool           `json:"success_flag"`
	Details   map[string]any `json:"additional_details"`
	ClientID  string         `json:"client_id"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
}

// NewEvent creates an audit event stamped at now.
// PRE: action is non-empty
// POST: Details is non-nil
func NewEvent(id string, now time.Time, action Action, success bool) Event {
	return Event{
		ID:        id,
		Timestamp: now,
		Action:    action,
		Success:   success,
		Details:   map[string]any{},
	}
}

// WithDetail adds one additional_details entry.
func (e Event) WithDetail(key string, value any) Event {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

// WithClient sets the client and network fields.
func (e Event) WithClient(clientID, ipAddress, userAgent string) Event {
	e.ClientID = clientID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// DetailsJSON encodes additional_details, "{}" when empty.
func (e Event) DetailsJSON() string {
	if len(e.Details) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Details)
	if err != nil {
		return "{}"
	}
	return string(b)
}

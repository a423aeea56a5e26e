package audit

import (
	"context"

	domain "confreg/internal/domain/audit"
)

// Store defines the interface for admin access log persistence.
type Store interface {
	// Save persists an audit event.
	// PRE: event has an ID and Action
	// POST: Event is persisted
	Save(ctx context.Context, event domain.Event) error

	// List returns audit events with optional filtering.
	// PRE: limit > 0
	// POST: Returns events ordered by timestamp desc
	List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error)
}

// Filter defines query parameters for listing audit events.
type Filter struct {
	Action   *domain.Action
	ClientID *string
	Success  *bool
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

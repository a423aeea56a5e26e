package registration

import (
	"context"

	domain "confreg/internal/domain/registration"
)

// Store persists submitted registrations.
type Store interface {
	// Insert stores one registration.
	// PRE: r.CreatedAt is set
	// POST: returns the stored row with its assigned ID
	Insert(ctx context.Context, r domain.Registration) (domain.Registration, error)

	// List returns every registration ordered by created_at descending.
	List(ctx context.Context) ([]domain.Registration, error)

	// GetByID retrieves one registration.
	GetByID(ctx context.Context, id string) (domain.Registration, error)
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

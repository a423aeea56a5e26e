package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"confreg/internal/adapters/storage"
	domain "confreg/internal/domain/audit"
)

const dateLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the audit Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new audit event store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save persists an audit event.
// PRE: event has an ID and Action
// POST: Event is persisted
func (s *SQLiteStore) Save(ctx context.Context, event domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_access_log (id, timestamp, action_type, success_flag, additional_details, client_id, ip_address, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC().Format(dateLayout), string(event.Action), event.Success,
		event.DetailsJSON(), event.ClientID, event.IPAddress, event.UserAgent)
	return err
}

// List returns audit events with optional filtering.
// PRE: limit > 0
// POST: Returns events ordered by timestamp desc
func (s *SQLiteStore) List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error) {
	query := `SELECT id, timestamp, action_type, success_flag, additional_details, client_id, ip_address, user_agent FROM admin_access_log WHERE 1=1`
	args := []any{}

	if filter.Action != nil {
		query += " AND action_type = ?"
		args = append(args, string(*filter.Action))
	}
	if filter.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *filter.ClientID)
	}
	if filter.Success != nil {
		query += " AND success_flag = ?"
		args = append(args, *filter.Success)
	}

	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// scanEvents scans multiple rows into a slice of Events.
func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var timestamp, details string
		err := rows.Scan(&e.ID, &timestamp, &e.Action, &e.Success, &details, &e.ClientID, &e.IPAddress, &e.UserAgent)
		if err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(dateLayout, timestamp)
		e.Details = map[string]any{}
		if details != "" {
			_ = json.Unmarshal([]byte(details), &e.Details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

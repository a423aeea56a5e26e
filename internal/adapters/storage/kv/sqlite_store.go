package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"confreg/internal/adapters/storage"
)

// dateLayout is fixed-width so updated_at compares lexically.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps values in the client_kv table.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a new client key-value store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get returns the value of key for clientID.
// PRE: client_kv exists
// POST: ok is false when no row matches
func (s *SQLiteStore) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM client_kv WHERE client_id = ? AND key = ?", clientID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

// Set upserts value under key for clientID.
func (s *SQLiteStore) Set(ctx context.Context, clientID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_kv (client_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		clientID, key, value, s.now().UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys for clientID.
func (s *SQLiteStore) Delete(ctx context.Context, clientID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, clientID)
	for _, k := range keys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM client_kv WHERE client_id = ? AND key IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// PurgeBefore removes entries not written since cutoff and returns how many were removed.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM client_kv WHERE updated_at < ?", cutoff.UTC().Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("kv purge: %w", err)
	}
	return res.RowsAffected()
}

var _ Store = (*SQLiteStore)(nil)

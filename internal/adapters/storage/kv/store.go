package kv

import (
	"context"
	"errors"
)

// ErrNoClient is returned when a scoped store has no client id.
var ErrNoClient = errors.New("kv: missing client id")

// Store is a persistent string key-value store partitioned by client id.
type Store interface {
	// Get returns the value of key for clientID.
	// POST: ok is false when the key is absent
	Get(ctx context.Context, clientID, key string) (value string, ok bool, err error)

	// Set stores value under key for clientID, replacing any previous value.
	Set(ctx context.Context, clientID, key, value string) error

	// Delete removes keys for clientID. Missing keys are ignored.
	Delete(ctx context.Context, clientID string, keys ...string) error
}

// Local is one client's view of a Store.
type Local interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// Bind scopes s to clientID.
// PRE: clientID is non-empty
func Bind(s Store, clientID string) Local {
	return &scoped{store: s, clientID: clientID}
}

type scoped struct {
	store    Store
	clientID string
}

func (l *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	if l.clientID == "" {
		return "", false, ErrNoClient
	}
	return l.store.Get(ctx, l.clientID, key)
}

func (l *scoped) Set(ctx context.Context, key, value string) error {
	if l.clientID == "" {
		return ErrNoClient
	}
	return l.store.Set(ctx, l.clientID, key, value)
}

func (l *scoped) Remove(ctx context.Context, keys ...string) error {
	if l.clientID == "" {
		return ErrNoClient
	}
	if len(keys) == 0 {
		return nil
	}
	return l.store.Delete(ctx, l.clientID, keys...)
}

package kv

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps values in process memory with an idle expiry.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an in-memory store. A non-positive ttl keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	exp := gocache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		exp = ttl
		cleanup = ttl / 2
	}
	return &MemoryStore{cache: gocache.New(exp, cleanup)}
}

func memoryKey(clientID, key string) string {
	return clientID + "\x00" + key
}

// Get returns the value of key for clientID.
func (s *MemoryStore) Get(_ context.Context, clientID, key string) (string, bool, error) {
	v, ok := s.cache.Get(memoryKey(clientID, key))
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

// Set stores value under key for clientID.
func (s *MemoryStore) Set(_ context.Context, clientID, key, value string) error {
	s.cache.Set(memoryKey(clientID, key), value, gocache.DefaultExpiration)
	return nil
}

// Delete removes keys for clientID.
func (s *MemoryStore) Delete(_ context.Context, clientID string, keys ...string) error {
	for _, k := range keys {
		s.cache.Delete(memoryKey(clientID, k))
	}
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

var _ Store = (*MemoryStore)(nil)

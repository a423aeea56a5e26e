package kv_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"confreg/internal/adapters/storage"
	"confreg/internal/adapters/storage/kv"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSQLite(t *testing.T) *kv.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.MigrateDB(db))
	return kv.NewSQLiteStore(db)
}

func newRedis(t *testing.T) (*kv.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := kv.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s kv.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, kv.NewMemoryStore(0)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
	t.Run("redis", func(t *testing.T) {
		s, _ := newRedis(t)
		fn(t, s)
	})
}

func TestStore_SetGetDelete(t *testing.T) {
	backends(t, func(t *testing.T, s kv.Store) {
		ctx := context.Background()

		_, ok, err := s.Get(ctx, "c1", "adminAuth")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Set(ctx, "c1", "adminAuth", "authenticated"))
		require.NoError(t, s.Set(ctx, "c1", "adminAuthTime", "1"))
		require.NoError(t, s.Set(ctx, "c1", "adminAuthTime", "2"))

		v, ok, err := s.Get(ctx, "c1", "adminAuthTime")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2", v)

		require.NoError(t, s.Delete(ctx, "c1", "adminAuth", "adminAuthTime", "missing"))
		_, ok, _ = s.Get(ctx, "c1", "adminAuth")
		assert.False(t, ok)
		_, ok, _ = s.Get(ctx, "c1", "adminAuthTime")
		assert.False(t, ok)

		require.NoError(t, s.Delete(ctx, "c1"))
	})
}

func TestStore_ClientsAreIsolated(t *testing.T) {
	backends(t, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "alice", "registrationData", `{"step":2}`))

		_, ok, err := s.Get(ctx, "bob", "registrationData")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Delete(ctx, "bob", "registrationData"))
		v, ok, _ := s.Get(ctx, "alice", "registrationData")
		assert.True(t, ok)
		assert.Equal(t, `{"step":2}`, v)
	})
}

func TestBind(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore(0)
	local := kv.Bind(s, "c9")

	require.NoError(t, local.Set(ctx, "lastAdminFetch", "100"))
	v, ok, err := s.Get(ctx, "c9", "lastAdminFetch")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "100", v)

	require.NoError(t, local.Remove(ctx, "lastAdminFetch"))
	assert.Equal(t, 0, s.Len())
	require.NoError(t, local.Remove(ctx))

	anon := kv.Bind(s, "")
	assert.ErrorIs(t, anon.Set(ctx, "k", "v"), kv.ErrNoClient)
	_, _, err = anon.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNoClient)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := kv.NewMemoryStore(20 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c", "k", "v"))

	assert.Eventually(t, func() bool {
		_, ok, _ := s.Get(ctx, "c", "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRedisStore_TTLAndLayout(t *testing.T) {
	s, mr := newRedis(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c1", "adminAuth", "authenticated"))

	assert.Equal(t, "authenticated", mr.HGet("confreg:kv:c1", "adminAuth"))
	assert.Equal(t, time.Hour, mr.TTL("confreg:kv:c1"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := s.Get(ctx, "c1", "adminAuth")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedis(t)
	mr.Close()

	_, _, err := s.Get(context.Background(), "c1", "k")
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}

func TestSQLiteStore_PurgeBefore(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c1", "k", "v"))

	n, err := s.PurgeBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.PurgeBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

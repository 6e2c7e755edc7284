package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/chronicle/pkg/store"
	"github.com/astromechza/chronicle/pkg/store/redis"
	"github.com/astromechza/chronicle/pkg/store/storetest"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	s, _ := newStore(t)
	storetest.RunSnapshotStoreContract(t, s)
	storetest.RunSessionStoreContract(t, s)
}

func TestRedisStore_SessionTTL(t *testing.T) {
	s, mr := newStore(t, redis.WithTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "alice", "bob", []byte("token")))
	require.NoError(t, s.PutSnapshot(ctx, "table", []byte("doc")))

	mr.FastForward(2 * time.Second)

	_, err := s.LoadSession(ctx, "alice", "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)

	raw, err := s.GetSnapshot(ctx, "table")
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), raw)
}

func TestRedisStore_Prefix(t *testing.T) {
	s, mr := newStore(t, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, s.PutSnapshot(ctx, "table", []byte("doc")))
	require.NoError(t, s.SaveSession(ctx, "alice", "bob", []byte("token")))

	assert.True(t, mr.Exists("custom:app:snapshot:table"))
	assert.True(t, mr.Exists("custom:app:snapshots"))
	assert.True(t, mr.Exists("custom:app:session:alice/bob"))
}

func TestRedisStore_RejectsSlashInPeerID(t *testing.T) {
	s, _ := newStore(t)
	err := s.SaveSession(context.Background(), "a/b", "c", []byte("x"))
	assert.Error(t, err)
}

func TestRedisStore_DeleteErrors(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	mr.SetError("server unavailable")

	err := s.DeleteSnapshot(ctx, "table")
	assert.ErrorContains(t, err, "failed to delete snapshot from redis")
	assert.ErrorContains(t, err, "server unavailable")

	err = s.DeleteSession(ctx, "alice", "bob")
	assert.ErrorContains(t, err, "failed to delete session from redis")
	assert.ErrorContains(t, err, "server unavailable")
}

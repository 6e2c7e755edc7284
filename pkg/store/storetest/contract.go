// Package storetest holds the behaviour every store.Store adapter must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/chronicle/pkg/store"
)

// RunSnapshotStoreContract verifies put/get/list/delete semantics.
func RunSnapshotStoreContract(t *testing.T, s store.SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetSnapshot_NotFound", func(t *testing.T) {
		_, err := s.GetSnapshot(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("PutSnapshot_LatestWins", func(t *testing.T) {
		require.NoError(t, s.PutSnapshot(ctx, "table-1", []byte{0x85, 0x6f, 0x4a, 0x83, 0x01}))
		require.NoError(t, s.PutSnapshot(ctx, "table-1", []byte{0x85, 0x6f, 0x4a, 0x83, 0x02}))

		raw, err := s.GetSnapshot(ctx, "table-1")
		require.NoError(t, err)
		assert.Equal(t, []byte{0x85, 0x6f, 0x4a, 0x83, 0x02}, raw)
	})

	t.Run("ListStores", func(t *testing.T) {
		require.NoError(t, s.PutSnapshot(ctx, "table-2", []byte("other")))
		ids, err := s.ListStores(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, "table-1")
		assert.Contains(t, ids, "table-2")
	})

	t.Run("DeleteSnapshot", func(t *testing.T) {
		require.NoError(t, s.DeleteSnapshot(ctx, "table-2"))
		_, err := s.GetSnapshot(ctx, "table-2")
		assert.ErrorIs(t, err, store.ErrNotFound)

		ids, err := s.ListStores(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, "table-2")
	})
}

// RunSessionStoreContract verifies that sessions are keyed by ordered peer pair.
func RunSessionStoreContract(t *testing.T, s store.SessionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("LoadSession_NotFound", func(t *testing.T) {
		_, err := s.LoadSession(ctx, "alice", "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SaveSession_OrderedPair", func(t *testing.T) {
		require.NoError(t, s.SaveSession(ctx, "alice", "bob", []byte("alice-about-bob")))
		require.NoError(t, s.SaveSession(ctx, "bob", "alice", []byte("bob-about-alice")))

		raw, err := s.LoadSession(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("alice-about-bob"), raw)

		raw, err = s.LoadSession(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.Equal(t, []byte("bob-about-alice"), raw)
	})

	t.Run("SaveSession_Overwrite", func(t *testing.T) {
		require.NoError(t, s.SaveSession(ctx, "alice", "bob", []byte("next")))
		raw, err := s.LoadSession(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("next"), raw)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		require.NoError(t, s.DeleteSession(ctx, "alice", "bob"))
		_, err := s.LoadSession(ctx, "alice", "bob")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.LoadSession(ctx, "bob", "alice")
		assert.NoError(t, err)
	})
}

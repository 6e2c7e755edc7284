// Package store defines where callers keep document snapshots and sync sessions between
// calls. A Chronicle never owns either; these ports exist so that the same session token
// survives process restarts.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a snapshot or session does not exist.
var ErrNotFound = errors.New("not found")

// SnapshotStore keeps the latest saved document per store id.
type SnapshotStore interface {
	// PutSnapshot records snapshot as the latest for storeID.
	PutSnapshot(ctx context.Context, storeID string, snapshot []byte) error

	// GetSnapshot returns the latest snapshot, or ErrNotFound.
	GetSnapshot(ctx context.Context, storeID string) ([]byte, error)

	DeleteSnapshot(ctx context.Context, storeID string) error

	// ListStores returns the ids that currently hold a snapshot.
	ListStores(ctx context.Context) ([]string, error)
}

// SessionStore keeps one sync session per ordered peer pair. The session local keeps about
// remote is unrelated to the one remote keeps about local.
type SessionStore interface {
	SaveSession(ctx context.Context, local, remote string, session []byte) error

	// LoadSession returns the stored session, or ErrNotFound.
	LoadSession(ctx context.Context, local, remote string) ([]byte, error)

	DeleteSession(ctx context.Context, local, remote string) error
}

// Store is implemented by every adapter in this module.
type Store interface {
	SnapshotStore
	SessionStore
	Close() error
}

// SessionKey joins an ordered peer pair into a single key.
func SessionKey(local, remote string) string {
	return local + "/" + remote
}

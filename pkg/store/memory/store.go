package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/astromechza/chronicle/pkg/store"
)

// Store implements store.Store in memory.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	sessions  map[[2]string][]byte
}

func NewStore() *Store {
	return &Store{
		snapshots: make(map[string][]byte),
		sessions:  make(map[[2]string][]byte),
	}
}

// PutSnapshot copies snapshot so later caller mutations do not leak into the store.
func (s *Store) PutSnapshot(ctx context.Context, storeID string, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[storeID] = clone(snapshot)
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, storeID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.snapshots[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(raw), nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, storeID)
	return nil
}

func (s *Store) ListStores(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) SaveSession(ctx context.Context, local, remote string, session []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[[2]string{local, remote}] = clone(session)
	return nil
}

func (s *Store) LoadSession(ctx context.Context, local, remote string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.sessions[[2]string{local, remote}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(raw), nil
}

func (s *Store) DeleteSession(ctx context.Context, local, remote string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, [2]string{local, remote})
	return nil
}

func (s *Store) Close() error {
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

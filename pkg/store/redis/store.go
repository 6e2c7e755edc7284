package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/astromechza/chronicle/pkg/store"
)

// Store implements store.Store using Redis. Snapshots live under <prefix>snapshot:<id> and
// are indexed in a set; sessions live under <prefix>session:<local>/<remote>.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions. Snapshots never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "chronicle:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) snapshotKey(storeID string) string {
	return s.prefix + "snapshot:" + storeID
}

func (s *Store) indexKey() string {
	return s.prefix + "snapshots"
}

func (s *Store) sessionKey(local, remote string) string {
	return s.prefix + "session:" + store.SessionKey(local, remote)
}

func (s *Store) PutSnapshot(ctx context.Context, storeID string, snapshot []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.snapshotKey(storeID), snapshot, 0)
	pipe.SAdd(ctx, s.indexKey(), storeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot to redis: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, storeID string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.snapshotKey(storeID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}
	return raw, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, storeID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.snapshotKey(storeID))
	pipe.SRem(ctx, s.indexKey(), storeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete snapshot from redis: %w", err)
	}
	return nil
}

func (s *Store) ListStores(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) SaveSession(ctx context.Context, local, remote string, session []byte) error {
	if strings.Contains(local, "/") {
		return fmt.Errorf("peer id %q must not contain '/'", local)
	}
	if err := s.client.Set(ctx, s.sessionKey(local, remote), session, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, local, remote string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(local, remote)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	return raw, nil
}

func (s *Store) DeleteSession(ctx context.Context, local, remote string) error {
	if err := s.client.Del(ctx, s.sessionKey(local, remote)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

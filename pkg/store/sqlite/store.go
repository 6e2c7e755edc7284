// Package sqlite keeps snapshots and sync sessions in a sqlite database.
//
// Every snapshot ever put is kept as a row; the stores table points at the latest one. Each
// put inserts the new row and moves the pointer inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/chronicle/pkg/store"
)

type Store struct {
	database *sql.DB
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (or creates) the database at path and ensures the tables exist.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{database: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS stores (
		id text not null primary key,
		snapshot_id text not null
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
		id text not null primary key,
		store_id text not null,
		content text not null,
		created_at integer not null
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
		local text not null,
		remote text not null,
		content text not null,
		primary key (local, remote)
		)`,
	} {
		if _, err := s.database.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	s.logger.Debug("ensured sqlite tables exist")
	return nil
}

func (s *Store) PutSnapshot(ctx context.Context, storeID string, snapshot []byte) error {
	tx, err := s.database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("failed to rollback", "err", err)
		}
	}()

	snapshotID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots(id, store_id, content, created_at) VALUES (?, ?, ?, ?)`,
		snapshotID, storeID, base64.StdEncoding.EncodeToString(snapshot), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}

	if res, err := tx.ExecContext(ctx,
		`INSERT INTO stores(id, snapshot_id) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		storeID, snapshotID,
	); err != nil {
		return fmt.Errorf("failed to update store: %w", err)
	} else if r, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to count rows affected by store update: %w", err)
	} else if r == 0 {
		return fmt.Errorf("no rows updated by store update")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.logger.Debug("persisted snapshot", "store", storeID, "snapshot", snapshotID, "bytes", len(snapshot))
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, storeID string) ([]byte, error) {
	var rawContent string
	if err := s.database.QueryRowContext(ctx,
		`SELECT content FROM snapshots sn INNER JOIN stores st ON sn.id = st.snapshot_id WHERE st.id = ?`,
		storeID,
	).Scan(&rawContent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return raw, nil
}

// DeleteSnapshot removes the store and its whole snapshot history.
func (s *Store) DeleteSnapshot(ctx context.Context, storeID string) error {
	tx, err := s.database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("failed to rollback", "err", err)
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = ?`, storeID); err != nil {
		return fmt.Errorf("failed to delete store: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE store_id = ?`, storeID); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) ListStores(ctx context.Context) ([]string, error) {
	rows, err := s.database.QueryContext(ctx, `SELECT id FROM stores ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close rows", "err", err)
		}
	}(rows)

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SnapshotCount returns how many snapshots have been kept for storeID.
func (s *Store) SnapshotCount(ctx context.Context, storeID string) (int, error) {
	var n int
	if err := s.database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE store_id = ?`, storeID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

func (s *Store) SaveSession(ctx context.Context, local, remote string, session []byte) error {
	if _, err := s.database.ExecContext(ctx,
		`INSERT INTO sessions(local, remote, content) VALUES (?, ?, ?)
		ON CONFLICT(local, remote) DO UPDATE SET content = excluded.content`,
		local, remote, base64.StdEncoding.EncodeToString(session),
	); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, local, remote string) ([]byte, error) {
	var rawContent string
	if err := s.database.QueryRowContext(ctx,
		`SELECT content FROM sessions WHERE local = ? AND remote = ?`, local, remote,
	).Scan(&rawContent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return raw, nil
}

func (s *Store) DeleteSession(ctx context.Context, local, remote string) error {
	if _, err := s.database.ExecContext(ctx,
		`DELETE FROM sessions WHERE local = ? AND remote = ?`, local, remote,
	); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.database.Close()
}

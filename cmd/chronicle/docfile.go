package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/astromechza/chronicle/internal/config"
	"github.com/astromechza/chronicle/pkg/chronicle"
	"github.com/astromechza/chronicle/pkg/store"
	"github.com/astromechza/chronicle/pkg/store/memory"
	"github.com/astromechza/chronicle/pkg/store/redis"
	"github.com/astromechza/chronicle/pkg/store/sqlite"
)

// openDoc loads the document file at path. A missing file gives an empty document when
// create is set.
func (a *app) openDoc(path string, create bool) (*chronicle.Chronicle, error) {
	c, err := a.newChronicle()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if create && errors.Is(err, os.ErrNotExist) {
			a.logger.Info("creating new document", "path", path)
			return c, nil
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if err := c.Load(raw); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if a.actor != "" {
		if err := c.SetActorID(a.actor); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// writeDoc replaces the file at path through a rename so readers never see a partial file.
func (a *app) writeDoc(path string, c *chronicle.Chronicle) error {
	raw := c.Save()
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	a.logger.Info("wrote document", "path", path, "bytes", len(raw), "heads", c.ChangeCount())
	return nil
}

func readInput(r io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(r)
	}
	return os.ReadFile(path)
}

func (a *app) openStore() (store.Store, error) {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverSQLite:
		return sqlite.Open(a.cfg.Store.SQLitePath, sqlite.WithLogger(a.logger))
	case config.DriverRedis:
		opts := []redis.Option{redis.WithPrefix(a.cfg.Store.RedisPrefix)}
		if a.cfg.Store.SessionTTL > 0 {
			opts = append(opts, redis.WithTTL(a.cfg.Store.SessionTTL.Duration()))
		}
		return redis.New(a.cfg.Store.RedisAddr, a.cfg.Store.RedisPassword, a.cfg.Store.RedisDB, opts...), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
}

func (a *app) closeStore(s store.Store) {
	if err := s.Close(); err != nil {
		a.logger.Error("failed to close store", "err", err)
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Package config loads the chronicle command configuration from YAML or JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	LogLevel string      `yaml:"logLevel" json:"logLevel"`
	Store    StoreConfig `yaml:"store" json:"store"`
	Sync     SyncConfig  `yaml:"sync" json:"sync"`
}

type StoreConfig struct {
	Driver        string        `yaml:"driver" json:"driver"`
	SQLitePath    string        `yaml:"sqlitePath" json:"sqlitePath"`
	RedisAddr     string        `yaml:"redisAddr" json:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword" json:"redisPassword"`
	RedisDB       int           `yaml:"redisDB" json:"redisDB"`
	RedisPrefix   string        `yaml:"redisPrefix" json:"redisPrefix"`
	SessionTTL    Duration      `yaml:"sessionTTL" json:"sessionTTL"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "1h") in both YAML
// and JSON. Plain JSON numbers are read as nanoseconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) set(raw string) error {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		return d.set(v)
	case float64:
		*d = Duration(v)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type SyncConfig struct {
	MaxMessages int `yaml:"maxMessages" json:"maxMessages"`
}

func Default() *Config {
	return &Config{
		LogLevel: "warn",
		Store: StoreConfig{
			Driver:      DriverSQLite,
			SQLitePath:  "chronicle.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "chronicle:",
		},
		Sync: SyncConfig{MaxMessages: 100},
	}
}

// Load reads path over the defaults. A missing file yields the defaults. Files ending in
// .json are parsed as JSON, anything else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlitePath is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Sync.MaxMessages <= 0 {
		return fmt.Errorf("sync.maxMessages must be positive")
	}
	if c.Store.SessionTTL < 0 {
		return fmt.Errorf("store.sessionTTL must not be negative")
	}
	return nil
}

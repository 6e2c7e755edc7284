package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "chronicle.yaml", `
logLevel: debug
store:
  driver: redis
  redisAddr: cache:6379
  redisDB: 2
  sessionTTL: 1h
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, time.Hour, cfg.Store.SessionTTL.Duration())
	assert.Equal(t, "chronicle:", cfg.Store.RedisPrefix)
	assert.Equal(t, 100, cfg.Sync.MaxMessages)
}

func TestLoad_JSON(t *testing.T) {
	path := write(t, "chronicle.json", `{"store": {"driver": "memory"}, "sync": {"maxMessages": 7}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 7, cfg.Sync.MaxMessages)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_JSONDuration(t *testing.T) {
	path := write(t, "chronicle.json", `{"store": {"driver": "redis", "sessionTTL": "1h30m"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.Store.SessionTTL.Duration())

	path = write(t, "bad.json", `{"store": {"driver": "redis", "sessionTTL": "soon"}}`)
	_, err = Load(path)
	assert.ErrorContains(t, err, "bad.json")
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	raw, err := json.Marshal(StoreConfig{SessionTTL: Duration(time.Hour)})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sessionTTL":"1h0m0s"`)

	var back StoreConfig
	require.NoError(t, yaml.Unmarshal([]byte("sessionTTL: 1h0m0s\n"), &back))
	assert.Equal(t, time.Hour, back.SessionTTL.Duration())
}

func TestLoad_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"driver.yaml":   "store:\n  driver: etcd\n",
		"messages.yaml": "sync:\n  maxMessages: 0\n",
		"syntax.yaml":   "store: [",
		"sqlite.yaml":   "store:\n  sqlitePath: \"\"\n",
		"ttl.yaml":      "store:\n  sessionTTL: -1s\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, name, content))
			assert.Error(t, err)
		})
	}
}

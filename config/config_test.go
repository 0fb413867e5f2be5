package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "localhost:8080", c.Addr)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.Equal(t, 10*time.Minute, c.Storage.CacheTTL)
	assert.Equal(t, uint64(1024), c.Storage.CacheCapacity)
	assert.Equal(t, 16, c.Grid.DefaultRows)
	assert.Equal(t, 16, c.Grid.DefaultCols)
	assert.Equal(t, 5, c.Resolver.MaxAttempts)
	assert.Equal(t, time.Second, c.Feed.PollInterval)
	assert.Equal(t, logging.DefaultConfig, c.Logging)
	assert.NoError(t, c.Validate())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
addr: ":9000"
storage:
  driver: SQLite
  dsn: /tmp/chunks.db
  cache_ttl: 5m
grid:
  default_rows: 32
session:
  ping_interval: 2s
  read_timeout: 7s
resolver:
  max_attempts: 3
logging:
  level: debug
  format: text
`))
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Addr)
	assert.Equal(t, DriverSQLite, c.Storage.Driver)
	assert.Equal(t, "/tmp/chunks.db", c.Storage.DSN)
	assert.Equal(t, 5*time.Minute, c.Storage.CacheTTL)
	assert.Equal(t, 32, c.Grid.DefaultRows)
	assert.Equal(t, 16, c.Grid.DefaultCols)
	assert.Equal(t, 2*time.Second, c.Session.PingInterval)
	assert.Equal(t, 7*time.Second, c.Session.ReadTimeout)
	assert.Equal(t, 5*time.Second, c.Session.WriteTimeout)
	assert.Equal(t, 3, c.Resolver.MaxAttempts)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "text", c.Logging.Format)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Grid, c.Grid)
}

func TestParseInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":      "bogus: 1\n",
		"bad yaml":         "addr: [\n",
		"unknown driver":   "storage:\n  driver: redis\n",
		"missing dsn":      "storage:\n  driver: postgres\n",
		"grid too large":   "grid:\n  default_rows: 300\n",
		"read before ping": "session:\n  ping_interval: 10s\n  read_timeout: 5s\n",
		"negative retries": "resolver:\n  max_attempts: -1\n",
		"negative ttl":     "storage:\n  cache_ttl: -1s\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(errors.KindInvalid, err), err.Error())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelchunk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":7000\"\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", c.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(errors.KindInvalid, err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PIXELCHUNK_ADDR", ":6000")
	t.Setenv("LOG_LEVEL", "WARN")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":6000", c.Addr)
	assert.Equal(t, "warn", c.Logging.Level)
}

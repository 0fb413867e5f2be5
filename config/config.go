// Package config loads the server configuration from YAML.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
)

const (
	component = errors.Component("config")
	opLoad    = errors.Op("config.Load")
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Addr     string         `yaml:"addr"`
	Storage  StorageConfig  `yaml:"storage"`
	Grid     GridConfig     `yaml:"grid"`
	Session  SessionConfig  `yaml:"session"`
	Resolver ResolverConfig `yaml:"resolver"`
	Feed     FeedConfig     `yaml:"feed"`
	Logging  logging.Config `yaml:"logging"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	CacheCapacity uint64        `yaml:"cache_capacity"`
}

type GridConfig struct {
	DefaultRows int `yaml:"default_rows"`
	DefaultCols int `yaml:"default_cols"`
}

type SessionConfig struct {
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
}

type ResolverConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

type FeedConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = "localhost:8080"
	}
	c.Storage.defaults()
	c.Grid.defaults()
	c.Session.defaults()
	c.Resolver.defaults()
	c.Feed.defaults()
	if c.Logging == (logging.Config{}) {
		c.Logging = logging.DefaultConfig
	}
}

func (s *StorageConfig) defaults() {
	if s.Driver == "" {
		s.Driver = DriverMemory
	}
	s.Driver = strings.ToLower(s.Driver)
	if s.CacheTTL == 0 {
		s.CacheTTL = 10 * time.Minute
	}
	if s.CacheCapacity == 0 {
		s.CacheCapacity = 1024
	}
}

func (g *GridConfig) defaults() {
	if g.DefaultRows == 0 {
		g.DefaultRows = 16
	}
	if g.DefaultCols == 0 {
		g.DefaultCols = 16
	}
}

func (s *SessionConfig) defaults() {
	if s.PingInterval == 0 {
		s.PingInterval = 10 * time.Second
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 5 * time.Second
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = 5 * time.Second
	}
	if s.MaxMessageBytes == 0 {
		s.MaxMessageBytes = 1 << 20
	}
}

func (r *ResolverConfig) defaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
}

func (f *FeedConfig) defaults() {
	if f.PollInterval == 0 {
		f.PollInterval = time.Second
	}
}

// Load reads path, fills defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		c := Default()
		c.applyEnv()
		return c, c.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(opLoad, component, errors.KindInvalid, err)
	}
	return Parse(data)
}

// Parse decodes YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.E(opLoad, component, errors.KindInvalid, err, "parse yaml")
	}
	c.defaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv overrides logging from LOG_* variables and the listen address
// from PIXELCHUNK_ADDR.
func (c *Config) applyEnv() {
	c.Logging = logging.ApplyEnv(c.Logging)
	if addr := os.Getenv("PIXELCHUNK_ADDR"); addr != "" {
		c.Addr = addr
	}
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.E(opLoad, component, errors.KindInvalid, fmt.Sprintf(format, args...))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return invalid("storage.dsn is required for driver %s", c.Storage.Driver)
		}
	default:
		return invalid("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.CacheTTL < 0 {
		return invalid("storage.cache_ttl must not be negative")
	}
	if err := grid.ValidateDimensions(c.Grid.DefaultRows, c.Grid.DefaultCols); err != nil {
		return errors.E(opLoad, component, err, "grid")
	}
	if c.Session.ReadTimeout <= c.Session.PingInterval {
		return invalid("session.read_timeout (%s) must exceed session.ping_interval (%s)",
			c.Session.ReadTimeout, c.Session.PingInterval)
	}
	if c.Resolver.MaxAttempts < 1 {
		return invalid("resolver.max_attempts must be at least 1")
	}
	if c.Feed.PollInterval <= 0 {
		return invalid("feed.poll_interval must be positive")
	}
	return nil
}

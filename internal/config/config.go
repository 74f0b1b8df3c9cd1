// Package config loads the TOML configuration of the relgraph command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/syssam/relgraph/dialect"
)

// Config is the command configuration.
type Config struct {
	Database Database `toml:"database"`
	Schema   Schema   `toml:"schema"`
	Log      Log      `toml:"log"`
	Server   Server   `toml:"server"`
}

// Database configures the store connection.
type Database struct {
	// Dialect is one of sqlite, postgres and mysql.
	Dialect string `toml:"dialect"`
	// Driver is the database/sql driver name. It defaults to the
	// registered driver of the dialect.
	Driver        string        `toml:"driver"`
	DSN           string        `toml:"dsn"`
	MaxOpenConns  int           `toml:"max_open_conns"`
	SlowThreshold time.Duration `toml:"slow_threshold"`
}

// Schema locates the YAML schema description.
type Schema struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// Log configures the command logger.
type Log struct {
	Level string `toml:"level"`
}

// Server configures the serve command.
type Server struct {
	Addr string `toml:"addr"`
}

var drivers = map[string]string{
	dialect.SQLite:   "sqlite",
	dialect.Postgres: "pgx",
	dialect.MySQL:    "mysql",
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, completes and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse is like Load for an in-memory document.
func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown keys %v", undecoded)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Database.Dialect) == "" {
		cfg.Database.Dialect = dialect.SQLite
	}
	if strings.TrimSpace(cfg.Database.Driver) == "" {
		cfg.Database.Driver = drivers[cfg.Database.Dialect]
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" && cfg.Database.Dialect == dialect.SQLite {
		cfg.Database.DSN = "file:relgraph.db?_pragma=foreign_keys(1)"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if strings.TrimSpace(cfg.Schema.Path) == "" {
		cfg.Schema.Path = "schema.yaml"
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := drivers[c.Database.Dialect]; !ok {
		errs = append(errs, fmt.Errorf("config: database.dialect %q is not supported", c.Database.Dialect))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("config: database.dsn is required"))
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("config: database.max_open_conns must not be negative, got %d", c.Database.MaxOpenConns))
	}
	if c.Database.SlowThreshold < 0 {
		errs = append(errs, fmt.Errorf("config: database.slow_threshold must not be negative, got %s", c.Database.SlowThreshold))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}

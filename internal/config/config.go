// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package config loads and validates Doorkeep configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML
// file, then command-line flags. The DATABASE_URL environment variable
// overrides database.url from any layer.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default configuration values.
const (
	DefaultServerAddr    = ":8080"
	DefaultMetricsAddr   = "127.0.0.1:9100"
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSweepInterval = time.Hour
	DefaultLogFormat     = "json"
)

// Config holds the full Doorkeep configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the web server.
type ServerConfig struct {
	Addr string `koanf:"addr"`
	// SecureCookies marks session cookies Secure. Off by default so
	// local plain-HTTP deployments keep working.
	SecureCookies bool `koanf:"secure_cookies"`
}

// MetricsConfig configures the observability server.
// An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig configures session lifetime and cleanup.
type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	errBuilder := oops.Code("CONFIG_INVALID").In("config")

	if c.Server.Addr == "" {
		return errBuilder.Errorf("server.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return errBuilder.
			With("log_format", c.Log.Format).
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Session.TTL <= 0 {
		return errBuilder.
			With("session_ttl", c.Session.TTL.String()).
			Errorf("session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return errBuilder.
			With("sweep_interval", c.Session.SweepInterval.String()).
			Errorf("session.sweep_interval must be positive")
	}
	return nil
}

// RegisterFlags adds the configuration flags to the given flag set.
// Flag defaults double as configuration defaults: posflag only
// overrides file values for flags the user actually set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", DefaultServerAddr, "HTTP listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.Bool("secure-cookies", false, "mark session cookies Secure (HTTPS deployments)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Duration("session-ttl", DefaultSessionTTL, "session lifetime")
	fs.Duration("sweep-interval", DefaultSweepInterval, "expired session sweep interval")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
}

// flagMapping maps flag names to koanf keys.
var flagMapping = map[string]string{
	"addr":           "server.addr",
	"metrics-addr":   "metrics.addr",
	"secure-cookies": "server.secure_cookies",
	"database-url":   "database.url",
	"session-ttl":    "session.ttl",
	"sweep-interval": "session.sweep_interval",
	"log-format":     "log.format",
}

// Load builds a Config from the optional YAML file at path, the given
// flag set, and the environment. Either argument may be zero-valued.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.
				Code("CONFIG_FILE_UNREADABLE").
				In("config").
				With("path", path).
				Wrapf(err, "loading config file")
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagMapping[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.
				Code("CONFIG_FLAGS_INVALID").
				In("config").
				Wrapf(err, "loading flags")
		}
	}

	cfg := &Config{
		Server:  ServerConfig{Addr: DefaultServerAddr},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
		Session: SessionConfig{
			TTL:           DefaultSessionTTL,
			SweepInterval: DefaultSweepInterval,
		},
		Log: LogConfig{Format: DefaultLogFormat},
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.
			Code("CONFIG_INVALID").
			In("config").
			Wrapf(err, "unmarshaling config")
	}

	// DATABASE_URL wins over file and flags, matching deployment
	// conventions where the URL carries credentials.
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// String returns a loggable summary without credentials.
func (c *Config) String() string {
	dbState := "unset"
	if c.Database.URL != "" {
		dbState = "set"
	}
	return fmt.Sprintf("server.addr=%s metrics.addr=%s database.url=%s session.ttl=%s log.format=%s",
		c.Server.Addr, c.Metrics.Addr, dbState, c.Session.TTL, c.Log.Format)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package config loads server settings from a YAML file, M5_ environment
// variables and command-line flags, in increasing precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: M5_DATABASE__QUERY_TIMEOUT sets database.query_timeout.
const EnvPrefix = "M5_"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the complete server configuration.
type Config struct {
	Store     string          `koanf:"store"`
	HTTP      HTTPConfig      `koanf:"http"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Database  DatabaseConfig  `koanf:"database"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Lockout   LockoutConfig   `koanf:"lockout"`
	Hasher    HasherConfig    `koanf:"hasher"`
	Log       LogConfig       `koanf:"log"`
}

type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// TrustProxy takes client addresses from X-Forwarded-For.
	TrustProxy bool `koanf:"trust_proxy"`
}

// MetricsConfig places the metrics and health listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

type DatabaseConfig struct {
	URL          string        `koanf:"url"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
	AutoMigrate  bool          `koanf:"auto_migrate"`
}

type SessionConfig struct {
	Duration      time.Duration `koanf:"duration"`
	TokenAttempts int           `koanf:"token_attempts"`
	PruneInterval time.Duration `koanf:"prune_interval"`
}

// RateLimitConfig sizes the per-client limiter. With RedisURL set the
// window is shared across instances.
type RateLimitConfig struct {
	Limit    int           `koanf:"limit"`
	Window   time.Duration `koanf:"window"`
	RedisURL string        `koanf:"redis_url"`
}

// LockoutConfig locks an email out after Threshold consecutive failed
// logins. A zero Threshold disables the lockout. The counts live in the
// rate limit Redis when one is configured.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// HasherConfig holds argon2id cost parameters. Raising them upgrades
// stored hashes on their owners' next login.
type HasherConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StorePostgres,
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			QueryTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			Duration:      time.Hour,
			TokenAttempts: 3,
			PruneInterval: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Limit:  100,
			Window: time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 7,
			Duration:  15 * time.Minute,
		},
		Hasher: HasherConfig{Time: 1, MemoryKiB: 64 * 1024, Threads: 4},
		Log:    LogConfig{Format: "json", Level: "info"},
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"store":         "store",
	"listen":        "http.addr",
	"metrics-addr":  "metrics.addr",
	"database-url":  "database.url",
	"auto-migrate":  "database.auto_migrate",
	"session-ttl":   "session.duration",
	"redis-url":     "rate_limit.redis_url",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"trust-proxy":   "http.trust_proxy",
	"prune-every":   "session.prune_interval",
	"rate-limit":    "rate_limit.limit",
	"rate-window":   "rate_limit.window",
	"query-timeout": "database.query_timeout",
	"lockout-after": "lockout.threshold",
	"lockout-for":   "lockout.duration",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("store", d.Store, "storage backend (postgres or memory)")
	fs.String("listen", d.HTTP.Addr, "HTTP API listen address")
	fs.Bool("trust-proxy", false, "use X-Forwarded-For as the client address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health listen address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
	fs.Bool("auto-migrate", false, "apply pending migrations on startup")
	fs.Duration("session-ttl", d.Session.Duration, "session lifetime")
	fs.Duration("prune-every", d.Session.PruneInterval, "expired session prune interval (0 = disabled)")
	fs.Duration("query-timeout", d.Database.QueryTimeout, "per-query timeout")
	fs.Int("rate-limit", d.RateLimit.Limit, "requests per client per window")
	fs.Duration("rate-window", d.RateLimit.Window, "rate limit window")
	fs.String("redis-url", "", "Redis URL for a shared rate limit window")
	fs.Int("lockout-after", d.Lockout.Threshold, "failed logins that lock an email out (0 = disabled)")
	fs.Duration("lockout-for", d.Lockout.Duration, "login lockout duration")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// Load reads path (optional), then the environment, then the changed flags in fs.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database url is required for the postgres store")
		}
	case StoreMemory:
	default:
		return invalid("store", "store must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http listen address is required")
	}
	if c.Session.Duration <= 0 {
		return invalid("session.duration", "session duration must be positive, got %s", c.Session.Duration)
	}
	if c.Session.TokenAttempts < 1 {
		return invalid("session.token_attempts", "token attempts must be at least 1, got %d", c.Session.TokenAttempts)
	}
	if c.Session.PruneInterval < 0 {
		return invalid("session.prune_interval", "prune interval cannot be negative")
	}
	if c.Database.QueryTimeout <= 0 {
		return invalid("database.query_timeout", "query timeout must be positive, got %s", c.Database.QueryTimeout)
	}
	if c.RateLimit.Limit < 1 || c.RateLimit.Window <= 0 {
		return invalid("rate_limit", "rate limit needs a positive limit and window")
	}
	if c.Lockout.Threshold < 0 {
		return invalid("lockout.threshold", "lockout threshold cannot be negative")
	}
	if c.Lockout.Threshold > 0 && c.Lockout.Duration <= 0 {
		return invalid("lockout.duration", "lockout duration must be positive, got %s", c.Lockout.Duration)
	}
	if c.Hasher.Time < 1 || c.Hasher.Threads < 1 {
		return invalid("hasher", "hasher time and threads must be at least 1")
	}
	if c.Hasher.MemoryKiB < 8*uint32(c.Hasher.Threads) {
		return invalid("hasher.memory_kib", "hasher memory must be at least 8 KiB per thread")
	}
	// Hashes above these costs would not verify.
	if c.Hasher.MemoryKiB > 1<<20 {
		return invalid("hasher.memory_kib", "hasher memory cannot exceed 1 GiB, got %d KiB", c.Hasher.MemoryKiB)
	}
	if c.Hasher.Time > 64 {
		return invalid("hasher.time", "hasher time cannot exceed 64, got %d", c.Hasher.Time)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}

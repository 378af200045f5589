// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/fxg4n/m5/internal/auth"
	"github.com/fxg4n/m5/internal/auth/memory"
	"github.com/fxg4n/m5/internal/auth/postgres"
	"github.com/fxg4n/m5/internal/config"
	"github.com/fxg4n/m5/internal/observability"
	"github.com/fxg4n/m5/internal/store"
)

// backend bundles the persistence implementations selected by config.
type backend struct {
	users    auth.UserRepository
	sessions auth.SessionStore
	audit    auth.AuditLog
	ready    observability.ReadinessChecker
	close    func()
}

// backendDeps are injectable for tests. Nil fields use the defaults.
type backendDeps struct {
	// OpenPool connects to PostgreSQL. Default: store.Open
	OpenPool func(ctx context.Context, dsn string) (*pgxpool.Pool, error)
	// MigratorFactory opens a migrator. Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

func (d *backendDeps) withDefaults() *backendDeps {
	out := backendDeps{}
	if d != nil {
		out = *d
	}
	if out.OpenPool == nil {
		out.OpenPool = store.Open
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = defaultMigratorFactory
	}
	return &out
}

func openBackend(ctx context.Context, cfg *config.Config, deps *backendDeps) (*backend, error) {
	deps = deps.withDefaults()

	if cfg.Store == config.StoreMemory {
		slog.Warn("using in-memory store, data is lost on exit")
		return &backend{
			users:    memory.NewUserRepository(),
			sessions: memory.NewSessionStore(),
			audit:    memory.NewAuditLog(),
			close:    func() {},
		}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return nil, err
		}
	}

	pool, err := deps.OpenPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database")

	return &backend{
		users:    postgres.NewUserRepository(pool),
		sessions: postgres.NewSessionStore(pool),
		audit:    postgres.NewAuditLog(pool),
		ready:    pool.Ping,
		close:    pool.Close,
	}, nil
}

func autoMigrate(databaseURL string, factory func(string) (Migrator, error)) error {
	m, err := factory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	v, _, err := m.Version()
	if err != nil {
		return err
	}
	slog.Info("database schema up to date", "version", v)
	return nil
}

// newService builds the identity service over b with the configured costs.
func newService(cfg *config.Config, b *backend, opts ...auth.Option) (*auth.Service, error) {
	params := auth.DefaultArgon2Params
	params.Time = cfg.Hasher.Time
	params.Memory = cfg.Hasher.MemoryKiB
	params.Threads = cfg.Hasher.Threads
	hasher := auth.NewArgon2idHasher(auth.WithParams(params))

	base := []auth.Option{
		auth.WithAuditLog(b.audit),
		auth.WithSessionDuration(cfg.Session.Duration),
		auth.WithQueryTimeout(cfg.Database.QueryTimeout),
		auth.WithTokenAttempts(cfg.Session.TokenAttempts),
	}
	return auth.NewService(b.users, b.sessions, hasher, append(base, opts...)...)
}

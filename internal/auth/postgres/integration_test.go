// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

//go:build integration

package postgres_test

import (
	"context"
	"crypto/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fxg4n/m5/internal/auth"
	authpg "github.com/fxg4n/m5/internal/auth/postgres"
	"github.com/fxg4n/m5/internal/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("m5_test"),
		postgres.WithUsername("m5"),
		postgres.WithPassword("m5"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create migrator: " + err.Error())
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}
	_ = migrator.Close()

	testPool, err = store.Open(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to open pool: " + err.Error())
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func createUser(ctx context.Context, t *testing.T, email string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, "$argon2id$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	require.NoError(t, authpg.NewUserRepository(testPool).Create(ctx, user))
	return user
}

func TestIntegration_UserEmailUniqueIgnoresCase(t *testing.T) {
	ctx := context.Background()
	repo := authpg.NewUserRepository(testPool)
	user := createUser(ctx, t, "mixed.case@example.com")

	dup, err := auth.NewUser("MIXED.Case@Example.com", user.PasswordHash, time.Now())
	require.NoError(t, err)
	err = repo.Create(ctx, dup)
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	got, err := repo.GetByEmail(ctx, "Mixed.Case@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Nil(t, got.LastLogin)
}

func TestIntegration_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	sessions := authpg.NewSessionStore(testPool)
	user := createUser(ctx, t, "lifecycle@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, hash, err := auth.GenerateSessionToken(rand.Reader)
	require.NoError(t, err)

	session, err := sessions.Issue(ctx, user.ID, hash, now, now.Add(time.Hour), "192.0.2.1")
	require.NoError(t, err)

	_, err = sessions.Issue(ctx, user.ID, hash, now, now.Add(time.Hour), "192.0.2.1")
	assert.ErrorIs(t, err, auth.ErrTokenCollision)

	found, err := sessions.FindByToken(ctx, hash, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)

	_, err = sessions.FindByToken(ctx, hash, now.Add(time.Hour))
	assert.ErrorIs(t, err, auth.ErrNotFound, "expiry instant is inactive")

	invalidated, err := sessions.Invalidate(ctx, hash, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, invalidated)
	invalidated, err = sessions.Invalidate(ctx, hash, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, invalidated, "repeat is a no-op")
	_, err = sessions.FindByToken(ctx, hash, now.Add(time.Minute))
	assert.ErrorIs(t, err, auth.ErrNotFound)

	pruned, err := sessions.PruneExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pruned, int64(1))
}

func TestIntegration_DeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	users := authpg.NewUserRepository(testPool)
	sessions := authpg.NewSessionStore(testPool)
	audit := authpg.NewAuditLog(testPool)
	user := createUser(ctx, t, "cascade@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, hash, err := auth.GenerateSessionToken(rand.Reader)
	require.NoError(t, err)
	_, err = sessions.Issue(ctx, user.ID, hash, now, now.Add(time.Hour), "")
	require.NoError(t, err)

	uid := user.ID
	require.NoError(t, audit.Record(ctx, &auth.AuditEntry{
		ID: ulid.Make(), UserID: &uid, Action: auth.AuditLoginSucceeded, Timestamp: now,
		Details: map[string]any{"client_address": "192.0.2.7"},
	}))
	entries, err := audit.ListByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "192.0.2.7", entries[0].Details["client_address"])

	require.NoError(t, users.Delete(ctx, user.ID))

	active, err := sessions.ListActive(ctx, user.ID, now)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = sessions.Issue(ctx, user.ID, "other-hash", now, now.Add(time.Hour), "")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestIntegration_DeleteAccountKeepsAuditEntry(t *testing.T) {
	ctx := context.Background()
	hasher := auth.NewArgon2idHasher(auth.WithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}))
	svc, err := auth.NewService(
		authpg.NewUserRepository(testPool),
		authpg.NewSessionStore(testPool),
		hasher,
		auth.WithAuditLog(authpg.NewAuditLog(testPool)),
	)
	require.NoError(t, err)

	user, err := svc.Register(ctx, "leaving@example.com", "Str0ng!pass")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "leaving@example.com", "Str0ng!pass", "192.0.2.9")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, user.ID, "Str0ng!pass"))

	var count int
	var userID *string
	err = testPool.QueryRow(ctx,
		`SELECT count(*) OVER (), user_id FROM audit_logs WHERE action = $1`,
		auth.AuditAccountDelete,
	).Scan(&count, &userID)
	require.NoError(t, err, "delete entry is persisted")
	assert.Equal(t, 1, count)
	assert.Nil(t, userID, "user reference is cleared by the delete")
}

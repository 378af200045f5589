// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxg4n/m5/internal/auth"
	"github.com/fxg4n/m5/internal/auth/postgres"
	"github.com/fxg4n/m5/pkg/errutil"
)

var userColumns = []string{"id", "email", "password_hash", "created_at", "last_login"}

func TestUserRepository_Create(t *testing.T) {
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	user := &auth.User{ID: ulid.Make(), Email: "alice@example.com", PasswordHash: "$argon2id$x", CreatedAt: created}

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantIs    error
		wantCode  string
	}{
		{
			name: "inserts row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO users").
					WithArgs(user.ID.String(), user.Email, user.PasswordHash, created, pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation is duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO users").
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_lower_key"})
			},
			wantIs:   auth.ErrDuplicateEmail,
			wantCode: "USER_DUPLICATE_EMAIL",
		},
		{
			name: "other failure",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO users").
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "USER_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			err = postgres.NewUserRepository(mock).Create(context.Background(), user)
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			}
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	id := ulid.Make()
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	lastLogin := created.Add(time.Hour)

	t.Run("scans row with last login", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users\s+WHERE LOWER`).
			WithArgs("Alice@Example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "alice@example.com", "$argon2id$x", created, &lastLogin))

		user, err := postgres.NewUserRepository(mock).GetByEmail(context.Background(), "Alice@Example.com")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		require.NotNil(t, user.LastLogin)
		assert.Equal(t, lastLogin, *user.LastLogin)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null last login", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users\s+WHERE LOWER`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "alice@example.com", "$argon2id$x", created, nil))

		user, err := postgres.NewUserRepository(mock).GetByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.Nil(t, user.LastLogin)
	})

	t.Run("no rows is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users\s+WHERE LOWER`).
			WithArgs("nobody@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err = postgres.NewUserRepository(mock).GetByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users\s+WHERE LOWER`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow("not-a-ulid", "alice@example.com", "$argon2id$x", created, nil))

		_, err = postgres.NewUserRepository(mock).GetByEmail(context.Background(), "alice@example.com")
		errutil.AssertErrorCode(t, err, "USER_INVALID_ID")
	})
}

func TestUserRepository_Updates(t *testing.T) {
	id := ulid.Make()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		pattern  string
		args     []any
		affected int64
		call     func(r *postgres.UserRepository) error
		wantNF   bool
	}{
		{
			name:     "update last login",
			pattern:  "UPDATE users SET last_login",
			args:     []any{id.String(), at},
			affected: 1,
			call:     func(r *postgres.UserRepository) error { return r.UpdateLastLogin(context.Background(), id, at) },
		},
		{
			name:     "update password of missing user",
			pattern:  "UPDATE users SET password_hash",
			args:     []any{id.String(), "$argon2id$new"},
			affected: 0,
			call: func(r *postgres.UserRepository) error {
				return r.UpdatePassword(context.Background(), id, "$argon2id$new")
			},
			wantNF: true,
		},
		{
			name:     "delete",
			pattern:  "DELETE FROM users",
			args:     []any{id.String()},
			affected: 1,
			call:     func(r *postgres.UserRepository) error { return r.Delete(context.Background(), id) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(tt.pattern).
				WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err = tt.call(postgres.NewUserRepository(mock))
			if tt.wantNF {
				assert.ErrorIs(t, err, auth.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/fxg4n/m5/internal/auth"
)

const sessionColumns = `id, user_id, token_hash, issued_at, expires_at, client_address`

// SessionStore implements auth.SessionStore using PostgreSQL.
// Token uniqueness is enforced by the sessions_token_hash_key constraint.
type SessionStore struct {
	pool Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Issue inserts a new session.
func (s *SessionStore) Issue(ctx context.Context, userID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time, clientAddress string) (*auth.Session, error) {
	session, err := auth.NewSession(userID, tokenHash, issuedAt, expiresAt, clientAddress)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.TokenHash,
		session.IssuedAt,
		session.ExpiresAt,
		session.ClientAddress,
	)
	switch {
	case err == nil:
		return session, nil
	case isUniqueViolation(err):
		return nil, oops.Code("SESSION_TOKEN_COLLISION").Wrap(auth.ErrTokenCollision)
	case isForeignKeyViolation(err):
		return nil, oops.Code("SESSION_USER_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	default:
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", userID.String()).
			Wrap(err)
	}
}

// FindByToken returns the session for tokenHash if it is active at now.
func (s *SessionStore) FindByToken(ctx context.Context, tokenHash string, now time.Time) (*auth.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token_hash = $1 AND expires_at > $2
	`, tokenHash, now)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Invalidate expires the session at now. Inactive and unknown tokens match
// no rows and are not an error.
func (s *SessionStore) Invalidate(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = $2
		WHERE token_hash = $1 AND expires_at > $2
	`, tokenHash, now)
	if err != nil {
		return false, oops.Code("SESSION_INVALIDATE_FAILED").
			With("operation", "invalidate session").
			Wrap(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActive returns the user's active sessions, newest first.
func (s *SessionStore) ListActive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY issued_at DESC
	`, userID.String(), now)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list active sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}
	return sessions, nil
}

// InvalidateAll expires every active session of the user.
func (s *SessionStore) InvalidateAll(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = $2
		WHERE user_id = $1 AND expires_at > $2
	`, userID.String(), now)
	if err != nil {
		return 0, oops.Code("SESSION_INVALIDATE_ALL_FAILED").
			With("operation", "invalidate user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// PruneExpired deletes sessions inactive at now.
func (s *SessionStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_PRUNE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr, userIDStr string
		session          auth.Session
	)
	if err := row.Scan(&idStr, &userIDStr, &session.TokenHash, &session.IssuedAt, &session.ExpiresAt, &session.ClientAddress); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	session.ID = id
	session.UserID = userID
	return &session, nil
}

var _ auth.SessionStore = (*SessionStore)(nil)

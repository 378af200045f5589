// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes      = 32 // 32 bytes = 64 hex chars
	DefaultSessionDuration = time.Hour
)

// Session is proof of a successful authentication.
type Session struct {
	ID            ulid.ULID `json:"id"`
	UserID        ulid.ULID `json:"user_id"`
	TokenHash     string    `json:"-"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	ClientAddress string    `json:"client_address,omitempty"`
}

// NewSession creates a validated Session.
// clientAddress is optional and may be empty.
func NewSession(userID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time, clientAddress string) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(issuedAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("issued_at", issuedAt).
			With("expires_at", expiresAt).
			Errorf("expiry must be after issue time")
	}

	return &Session{
		ID:            ulid.Make(),
		UserID:        userID,
		TokenHash:     tokenHash,
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
		ClientAddress: clientAddress,
	}, nil
}

// IsActiveAt reports whether the session is usable at t.
// Invalidation sets ExpiresAt to the invalidation time, so the boundary is
// exclusive.
func (s *Session) IsActiveAt(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// GenerateSessionToken reads SessionTokenBytes from r and returns the
// hex-encoded token and its hash.
// The plaintext token is sent to the client; only the hash is stored.
func GenerateSessionToken(r io.Reader) (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = io.ReadFull(r, tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionStore persists sessions. Stores key sessions by token hash and never
// see plaintext tokens.
type SessionStore interface {
	// Issue inserts a new session. Returns ErrTokenCollision if tokenHash is
	// already stored.
	Issue(ctx context.Context, userID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time, clientAddress string) (*Session, error)

	// FindByToken returns the session for tokenHash if it is active at now.
	// Expired and invalidated sessions return ErrNotFound.
	FindByToken(ctx context.Context, tokenHash string, now time.Time) (*Session, error)

	// Invalidate expires the session at now and reports whether an active
	// session was affected. Unknown or already inactive sessions are not an
	// error.
	Invalidate(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// ListActive returns the user's sessions active at now, newest first.
	ListActive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*Session, error)

	// InvalidateAll expires every active session of the user and returns
	// how many were affected.
	InvalidateAll(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error)

	// PruneExpired deletes sessions inactive at now and returns the count.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

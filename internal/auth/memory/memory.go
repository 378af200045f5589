// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package memory provides in-process implementations of the auth stores.
// They enforce the same uniqueness rules as the PostgreSQL schema and are
// safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fxg4n/m5/internal/auth"
)

// UserRepository is an in-memory auth.UserRepository.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores user. The email check and insert happen under one lock.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	key := auth.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[key]; exists {
		return auth.ErrDuplicateEmail
	}
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[key] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(user), nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(r.byID[id]), nil
}

// UpdateLastLogin sets the last login timestamp.
func (r *UserRepository) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.LastLogin = &at
	return nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

// Delete removes a user.
func (r *UserRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(r.byEmail, auth.NormalizeEmail(user.Email))
	delete(r.byID, id)
	return nil
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// SessionStore is an in-memory auth.SessionStore.
type SessionStore struct {
	mu      sync.Mutex
	byToken map[string]*auth.Session
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{byToken: make(map[string]*auth.Session)}
}

// Issue stores a new session keyed by tokenHash.
func (s *SessionStore) Issue(_ context.Context, userID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time, clientAddress string) (*auth.Session, error) {
	session, err := auth.NewSession(userID, tokenHash, issuedAt, expiresAt, clientAddress)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[tokenHash]; exists {
		return nil, auth.ErrTokenCollision
	}
	s.byToken[tokenHash] = session
	c := *session
	return &c, nil
}

// FindByToken returns the session if it is active at now.
func (s *SessionStore) FindByToken(_ context.Context, tokenHash string, now time.Time) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byToken[tokenHash]
	if !ok || !session.IsActiveAt(now) {
		return nil, auth.ErrNotFound
	}
	c := *session
	return &c, nil
}

// Invalidate expires the session at now.
func (s *SessionStore) Invalidate(_ context.Context, tokenHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byToken[tokenHash]
	if !ok || !session.IsActiveAt(now) {
		return false, nil
	}
	session.ExpiresAt = now
	return true, nil
}

// ListActive returns the user's active sessions, newest first.
func (s *SessionStore) ListActive(_ context.Context, userID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Session
	for _, session := range s.byToken {
		if session.UserID == userID && session.IsActiveAt(now) {
			c := *session
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

// InvalidateAll expires every active session of the user.
func (s *SessionStore) InvalidateAll(_ context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, session := range s.byToken {
		if session.UserID == userID && session.IsActiveAt(now) {
			session.ExpiresAt = now
			n++
		}
	}
	return n, nil
}

// PruneExpired deletes sessions inactive at now.
func (s *SessionStore) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, session := range s.byToken {
		if !session.IsActiveAt(now) {
			delete(s.byToken, hash)
			n++
		}
	}
	return n, nil
}

// AuditLog is an in-memory auth.AuditLog.
type AuditLog struct {
	mu      sync.Mutex
	entries []*auth.AuditEntry
}

// NewAuditLog creates an empty AuditLog.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Record appends entry.
func (l *AuditLog) Record(_ context.Context, entry *auth.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *entry
	l.entries = append(l.entries, &c)
	return nil
}

// ListByUser returns up to limit entries for the user, newest first. A
// non-positive limit returns all of them.
func (l *AuditLog) ListByUser(_ context.Context, userID ulid.ULID, limit int) ([]*auth.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*auth.AuditEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.UserID == nil || *e.UserID != userID {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Entries returns every recorded entry in insertion order.
func (l *AuditLog) Entries() []*auth.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*auth.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

var (
	_ auth.UserRepository = (*UserRepository)(nil)
	_ auth.SessionStore   = (*SessionStore)(nil)
	_ auth.AuditLog       = (*AuditLog)(nil)
)

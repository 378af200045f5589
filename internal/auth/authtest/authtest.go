// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/fxg4n/m5/internal/auth"
)

// Clock is a manually advanced auth.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockUserRepository is a testify mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// Create records the call.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID records the call.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

// GetByEmail records the call.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

// UpdateLastLogin records the call.
func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// UpdatePassword records the call.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

// Delete records the call.
func (m *MockUserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSessionStore is a testify mock of auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// Issue records the call.
func (m *MockSessionStore) Issue(ctx context.Context, userID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time, clientAddress string) (*auth.Session, error) {
	args := m.Called(ctx, userID, tokenHash, issuedAt, expiresAt, clientAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

// FindByToken records the call.
func (m *MockSessionStore) FindByToken(ctx context.Context, tokenHash string, now time.Time) (*auth.Session, error) {
	args := m.Called(ctx, tokenHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

// Invalidate records the call.
func (m *MockSessionStore) Invalidate(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	args := m.Called(ctx, tokenHash, now)
	return args.Bool(0), args.Error(1)
}

// ListActive records the call.
func (m *MockSessionStore) ListActive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auth.Session), args.Error(1)
}

// InvalidateAll records the call.
func (m *MockSessionStore) InvalidateAll(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	args := m.Called(ctx, userID, now)
	return args.Get(0).(int64), args.Error(1)
}

// PruneExpired records the call.
func (m *MockSessionStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockLockoutStore is a testify mock of auth.LockoutStore.
type MockLockoutStore struct {
	mock.Mock
}

// Get records the call.
func (m *MockLockoutStore) Get(ctx context.Context, key string) (auth.LockoutState, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(auth.LockoutState), args.Error(1)
}

// RecordFailure records the call.
func (m *MockLockoutStore) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, duration time.Duration) (auth.LockoutState, error) {
	args := m.Called(ctx, key, now, threshold, duration)
	return args.Get(0).(auth.LockoutState), args.Error(1)
}

// Clear records the call.
func (m *MockLockoutStore) Clear(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

var (
	_ auth.Clock          = (*Clock)(nil)
	_ auth.UserRepository = (*MockUserRepository)(nil)
	_ auth.SessionStore   = (*MockSessionStore)(nil)
	_ auth.LockoutStore   = (*MockLockoutStore)(nil)
)

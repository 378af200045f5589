// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fxg4n/m5/internal/auth"
)

// sweepAbove is the entry count past which RecordFailure drops stale keys.
const sweepAbove = 10_000

type lockoutEntry struct {
	state       auth.LockoutState
	lastFailure time.Time
}

// LockoutStore is an in-memory auth.LockoutStore.
type LockoutStore struct {
	mu      sync.Mutex
	entries map[string]*lockoutEntry
}

// NewLockoutStore creates an empty LockoutStore.
func NewLockoutStore() *LockoutStore {
	return &LockoutStore{entries: make(map[string]*lockoutEntry)}
}

// Get returns the state for key.
func (s *LockoutStore) Get(_ context.Context, key string) (auth.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return auth.LockoutState{}, nil
	}
	return copyState(e.state), nil
}

// RecordFailure counts one failure for key. Counts left by an ended lock or
// idle for auth.LockoutFailureWindow start over.
func (s *LockoutStore) RecordFailure(_ context.Context, key string, now time.Time, threshold int, duration time.Duration) (auth.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || stale(e, now) {
		if len(s.entries) >= sweepAbove {
			s.sweep(now)
		}
		e = &lockoutEntry{}
		s.entries[key] = e
	}
	e.state.Failures++
	e.lastFailure = now
	if until := auth.ComputeLockoutTime(e.state.Failures, threshold, now, duration); until != nil {
		e.state.LockedUntil = until
	}
	return copyState(e.state), nil
}

// Clear forgets key.
func (s *LockoutStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of tracked keys.
func (s *LockoutStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *LockoutStore) sweep(now time.Time) {
	for key, e := range s.entries {
		if stale(e, now) {
			delete(s.entries, key)
		}
	}
}

func stale(e *lockoutEntry, now time.Time) bool {
	if e.state.LockedUntil != nil {
		return !e.state.IsLockedAt(now)
	}
	return now.Sub(e.lastFailure) >= auth.LockoutFailureWindow
}

func copyState(st auth.LockoutState) auth.LockoutState {
	if st.LockedUntil != nil {
		until := *st.LockedUntil
		st.LockedUntil = &until
	}
	return st
}

var _ auth.LockoutStore = (*LockoutStore)(nil)

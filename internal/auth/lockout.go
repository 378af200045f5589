// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth

import (
	"context"
	"math"
	"time"
)

// Lockout defaults.
const (
	// LockoutThreshold is the number of consecutive failures that locks an
	// email out.
	LockoutThreshold = 7

	// LockoutDuration is how long a lockout lasts.
	LockoutDuration = 15 * time.Minute

	// LockoutFailureWindow is how long an unlocked failure count survives
	// without another failure.
	LockoutFailureWindow = 24 * time.Hour
)

// LockoutState is the failure count and lock expiry stored for one key.
type LockoutState struct {
	Failures    int
	LockedUntil *time.Time
}

// IsLockedAt reports whether the lock is in force at now.
func (l LockoutState) IsLockedAt(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// RemainingAt returns the time left on the lock, zero when unlocked.
func (l LockoutState) RemainingAt(now time.Time) time.Duration {
	if !l.IsLockedAt(now) {
		return 0
	}
	return l.LockedUntil.Sub(now)
}

// ComputeLockoutTime returns the lock expiry for failures, or nil while
// failures is under threshold.
func ComputeLockoutTime(failures, threshold int, now time.Time, duration time.Duration) *time.Time {
	if failures < threshold {
		return nil
	}
	until := now.Add(duration)
	return &until
}

// LockoutStore counts failed logins per key. Keys are normalized emails and
// need not belong to a registered user.
type LockoutStore interface {
	// Get returns the state for key. Unknown keys return the zero state.
	Get(ctx context.Context, key string) (LockoutState, error)

	// RecordFailure adds one failure and locks key for duration once the
	// count reaches threshold. The count starts over after the lock ends.
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, duration time.Duration) (LockoutState, error)

	// Clear forgets key.
	Clear(ctx context.Context, key string) error
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

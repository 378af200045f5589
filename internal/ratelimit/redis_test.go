// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxg4n/m5/internal/auth"
	"github.com/fxg4n/m5/pkg/errutil"
)

func TestWindowDecision(t *testing.T) {
	tests := []struct {
		name  string
		count int64
		want  Decision
	}{
		{"first request", 1, Decision{Allowed: true, Remaining: 9}},
		{"at limit", 10, Decision{Allowed: true, Remaining: 0}},
		{"over limit", 11, Decision{RetryAfter: 12 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowDecision(tt.count, 10, 12*time.Second))
		})
	}
}

func TestRedisWindow_Key(t *testing.T) {
	l := NewRedisWindow(nil, "", Config{})
	start := time.Unix(1_700_000_040, 0)
	assert.Equal(t, "m5:ratelimit:198.51.100.7:1700000040", l.key("198.51.100.7", start))
	assert.Equal(t, int64(DefaultLimit), l.limit)
	assert.Equal(t, DefaultWindow, l.window)
}

func TestRedisWindow_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer func() { _ = client.Close() }()

	_, err := NewRedisWindow(client, "test", Config{}).Allow(context.Background(), "k")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "RATELIMIT_REDIS_FAILED")
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "redis://:badport:x")
	errutil.AssertErrorCode(t, err, "REDIS_URL_INVALID")
}

func TestParseLockout(t *testing.T) {
	until := time.UnixMilli(1_700_000_000_123).UTC()

	tests := []struct {
		name string
		data map[string]string
		want auth.LockoutState
	}{
		{"empty", map[string]string{}, auth.LockoutState{}},
		{"count only", map[string]string{"failed_count": "3"}, auth.LockoutState{Failures: 3}},
		{"locked", map[string]string{"failed_count": "7", "locked_until": "1700000000123"}, auth.LockoutState{Failures: 7, LockedUntil: &until}},
		{"malformed fields", map[string]string{"failed_count": "x", "locked_until": "-5"}, auth.LockoutState{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLockout(tt.data))
		})
	}
}

func TestRedisLockout_Key(t *testing.T) {
	assert.Equal(t, "m5:lockout:alice@example.com", NewRedisLockout(nil, "").key("alice@example.com"))
	assert.Equal(t, "it:a", NewRedisLockout(nil, "it").key("a"))
}

func TestRedisLockout_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer func() { _ = client.Close() }()
	store := NewRedisLockout(client, "test")
	ctx := context.Background()

	_, err := store.Get(ctx, "k")
	errutil.AssertErrorCode(t, err, "LOCKOUT_REDIS_FAILED")
	_, err = store.RecordFailure(ctx, "k", time.Now(), 3, time.Minute)
	errutil.AssertErrorCode(t, err, "LOCKOUT_REDIS_FAILED")
	errutil.AssertErrorCode(t, store.Clear(ctx, "k"), "LOCKOUT_REDIS_FAILED")
}

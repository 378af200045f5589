// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/fxg4n/m5/internal/auth"
)

// RedisLockout is an auth.LockoutStore shared through Redis. Each key is a
// hash under "<prefix>:<key>" with failed_count and locked_until fields.
type RedisLockout struct {
	client redis.Cmdable
	prefix string
}

// NewRedisLockout creates a lockout store over client.
func NewRedisLockout(client redis.Cmdable, prefix string) *RedisLockout {
	if prefix == "" {
		prefix = "m5:lockout"
	}
	return &RedisLockout{client: client, prefix: prefix}
}

// Get reads the state for key.
func (s *RedisLockout) Get(ctx context.Context, key string) (auth.LockoutState, error) {
	data, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return auth.LockoutState{}, oops.Code("LOCKOUT_REDIS_FAILED").With("operation", "get").Wrap(err)
	}
	return parseLockout(data), nil
}

// RecordFailure increments the count. Reaching threshold sets locked_until
// and shortens the key's TTL to the lock, so the count ends with it.
func (s *RedisLockout) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, duration time.Duration) (auth.LockoutState, error) {
	redisKey := s.key(key)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.HIncrBy(ctx, redisKey, "failed_count", 1)
		p.Expire(ctx, redisKey, auth.LockoutFailureWindow)
		return nil
	})
	if err != nil {
		return auth.LockoutState{}, oops.Code("LOCKOUT_REDIS_FAILED").With("operation", "record failure").Wrap(err)
	}

	state := auth.LockoutState{Failures: int(incr.Val())}
	until := auth.ComputeLockoutTime(state.Failures, threshold, now, duration)
	if until == nil {
		return state, nil
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisKey, "locked_until", until.UnixMilli())
		p.PExpire(ctx, redisKey, duration)
		return nil
	})
	if err != nil {
		return auth.LockoutState{}, oops.Code("LOCKOUT_REDIS_FAILED").With("operation", "lock").Wrap(err)
	}
	state.LockedUntil = until
	return state, nil
}

// Clear deletes key.
func (s *RedisLockout) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return oops.Code("LOCKOUT_REDIS_FAILED").With("operation", "clear").Wrap(err)
	}
	return nil
}

func (s *RedisLockout) key(key string) string {
	return s.prefix + ":" + key
}

// parseLockout ignores malformed fields.
func parseLockout(data map[string]string) auth.LockoutState {
	var state auth.LockoutState
	if n, err := strconv.Atoi(data["failed_count"]); err == nil {
		state.Failures = n
	}
	if ms, err := strconv.ParseInt(data["locked_until"], 10, 64); err == nil && ms > 0 {
		until := time.UnixMilli(ms).UTC()
		state.LockedUntil = &until
	}
	return state
}

var _ auth.LockoutStore = (*RedisLockout)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Connect builds a client from a redis:// URL or a bare host:port.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", addr).Wrap(err)
	}
	return client, nil
}

// RedisWindow is a fixed-window Limiter shared by every instance using the
// same Redis. Counters live under "<prefix>:<key>:<window start>".
type RedisWindow struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisWindow creates a limiter that stores counters in client.
func NewRedisWindow(client redis.Cmdable, prefix string, cfg Config) *RedisWindow {
	cfg = cfg.withDefaults()
	if prefix == "" {
		prefix = "m5:ratelimit"
	}
	return &RedisWindow{
		client: client,
		prefix: prefix,
		limit:  int64(cfg.Limit),
		window: cfg.Window,
		now:    time.Now,
	}
}

// Allow increments the counter of the current window for key.
func (l *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	redisKey := l.key(key, start)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.Expire(ctx, redisKey, l.window+time.Second)
		return nil
	})
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").With("key", redisKey).Wrap(err)
	}

	return windowDecision(incr.Val(), l.limit, start.Add(l.window).Sub(now)), nil
}

func (l *RedisWindow) key(key string, start time.Time) string {
	return l.prefix + ":" + key + ":" + strconv.FormatInt(start.Unix(), 10)
}

func windowDecision(count, limit int64, untilReset time.Duration) Decision {
	if count > limit {
		return Decision{RetryAfter: untilReset}
	}
	return Decision{Allowed: true, Remaining: int(limit - count)}
}

var _ Limiter = (*RedisWindow)(nil)

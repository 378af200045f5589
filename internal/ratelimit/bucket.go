// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCleanupInterval is how often idle buckets are evicted.
const DefaultCleanupInterval = 5 * time.Minute

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// TokenBucket is an in-process Limiter. Each key holds up to Limit tokens
// refilled continuously over Window. It is safe for concurrent use.
//
// A background goroutine evicts buckets idle for longer than Window, at
// which point they would be full anyway. Call Close to stop it.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	rate     float64 // tokens per second
	idle     time.Duration
	now      func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup

	gauge prometheus.Gauge
}

// BucketOption configures a TokenBucket.
type BucketOption func(*TokenBucket)

// WithNow replaces the time source.
func WithNow(now func() time.Time) BucketOption {
	return func(tb *TokenBucket) { tb.now = now }
}

// WithRegistry registers a gauge of tracked keys on reg.
func WithRegistry(reg prometheus.Registerer) BucketOption {
	return func(tb *TokenBucket) {
		tb.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "m5",
			Name:      "ratelimit_tracked_keys",
			Help:      "Client keys currently tracked by the in-process rate limiter",
		})
		reg.MustRegister(tb.gauge)
	}
}

// NewTokenBucket starts a limiter and its cleanup goroutine.
func NewTokenBucket(cfg Config, cleanupInterval time.Duration, opts ...BucketOption) *TokenBucket {
	cfg = cfg.withDefaults()
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	tb := &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: float64(cfg.Limit),
		rate:     float64(cfg.Limit) / cfg.Window.Seconds(),
		idle:     cfg.Window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(tb)
	}

	tb.wg.Add(1)
	go tb.cleanupLoop(cleanupInterval)
	return tb
}

// Allow consumes one token for key if available.
func (tb *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, lastSeen: now}
		tb.buckets[key] = b
	}

	b.tokens = min(tb.capacity, b.tokens+now.Sub(b.lastSeen).Seconds()*tb.rate)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
	}

	wait := (1 - b.tokens) / tb.rate
	return Decision{RetryAfter: time.Duration(wait * float64(time.Second))}, nil
}

// Len returns the number of tracked keys.
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// Cleanup evicts buckets not seen for longer than the window.
func (tb *TokenBucket) Cleanup() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	threshold := tb.now().Add(-tb.idle)
	for key, b := range tb.buckets {
		if b.lastSeen.Before(threshold) {
			delete(tb.buckets, key)
		}
	}
	if tb.gauge != nil {
		tb.gauge.Set(float64(len(tb.buckets)))
	}
}

func (tb *TokenBucket) cleanupLoop(interval time.Duration) {
	defer tb.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-tb.stop:
			return
		case <-ticker.C:
			tb.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit.
func (tb *TokenBucket) Close() {
	close(tb.stop)
	tb.wg.Wait()
}

var _ Limiter = (*TokenBucket)(nil)

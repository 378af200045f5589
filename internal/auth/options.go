// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth

import (
	"io"
	"log/slog"
	"time"
)

// Service defaults.
const (
	DefaultQueryTimeout     = 5 * time.Second
	DefaultTokenAttempts    = 3
	defaultCollisionBackoff = 10 * time.Millisecond
)

// Outcome labels passed to Recorder.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid_credentials"
	OutcomeLocked       = "locked"
	OutcomeConflict     = "conflict"
	OutcomeValidation   = "validation_failed"
	OutcomeError        = "error"
	OutcomeTokenInvalid = "token_invalid"
)

// Recorder receives service-level counters. observability.Metrics
// implements it.
type Recorder interface {
	LoginAttempt(outcome string)
	Registration(outcome string)
	SessionIssued()
	TokenValidation(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string)    {}
func (nopRecorder) Registration(string)    {}
func (nopRecorder) SessionIssued()         {}
func (nopRecorder) TokenValidation(string) {}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithRandom sets the token random source.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSessionDuration sets how long issued sessions stay active.
func WithSessionDuration(d time.Duration) Option {
	return func(s *Service) { s.sessionDuration = d }
}

// WithQueryTimeout bounds every persistence call.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) { s.queryTimeout = d }
}

// WithTokenAttempts sets how many tokens are tried before a collision is
// reported as an internal error.
func WithTokenAttempts(n int) Option {
	return func(s *Service) { s.tokenAttempts = n }
}

// WithAuditLog records security events to log.
func WithAuditLog(log AuditLog) Option {
	return func(s *Service) { s.audit = log }
}

// WithRecorder reports counters to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithLockout locks an email out for duration after threshold consecutive
// failed logins. Without it failures are never counted.
func WithLockout(store LockoutStore, threshold int, duration time.Duration) Option {
	return func(s *Service) {
		s.lockout = store
		s.lockoutThreshold = threshold
		s.lockoutDuration = duration
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Audit actions recorded by Service.
const (
	AuditRegister       = "user.register"
	AuditLoginSucceeded = "session.login"
	AuditLoginFailed    = "session.login_failed"
	AuditLoginLocked    = "session.login_locked"
	AuditLogout         = "session.logout"
	AuditLogoutAll      = "session.logout_all"
	AuditPasswordChange = "user.password_change"
	AuditAccountDelete  = "user.delete"
)

// AuditEntry records one security-relevant action.
type AuditEntry struct {
	ID        ulid.ULID      `json:"id"`
	UserID    *ulid.ULID     `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// AuditLog persists audit entries.
type AuditLog interface {
	Record(ctx context.Context, entry *AuditEntry) error
	ListByUser(ctx context.Context, userID ulid.ULID, limit int) ([]*AuditEntry, error)
}

type nopAuditLog struct{}

func (nopAuditLog) Record(context.Context, *AuditEntry) error { return nil }

func (nopAuditLog) ListByUser(context.Context, ulid.ULID, int) ([]*AuditEntry, error) {
	return nil, nil
}

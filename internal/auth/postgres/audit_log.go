// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package postgres

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/fxg4n/m5/internal/auth"
)

// AuditLog implements auth.AuditLog using PostgreSQL.
type AuditLog struct {
	pool Pool
}

// NewAuditLog creates a new AuditLog.
func NewAuditLog(pool Pool) *AuditLog {
	return &AuditLog{pool: pool}
}

// Record inserts an audit entry.
func (l *AuditLog) Record(ctx context.Context, entry *auth.AuditEntry) error {
	details := []byte("{}")
	if len(entry.Details) > 0 {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return oops.Code("AUDIT_RECORD_FAILED").
				With("operation", "marshal details").
				Wrap(err)
		}
	}

	var userID *string
	if entry.UserID != nil {
		s := entry.UserID.String()
		userID = &s
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource, occurred_at, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.ID.String(),
		userID,
		entry.Action,
		entry.Resource,
		entry.Timestamp,
		details,
	)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").
			With("operation", "insert audit entry").
			With("action", entry.Action).
			Wrap(err)
	}
	return nil
}

// ListByUser returns up to limit entries for the user, newest first.
func (l *AuditLog) ListByUser(ctx context.Context, userID ulid.ULID, limit int) ([]*auth.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, action, resource, occurred_at, details
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").
			With("operation", "list audit entries").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var entries []*auth.AuditEntry
	for rows.Next() {
		var (
			idStr   string
			details []byte
			entry   auth.AuditEntry
		)
		if err := rows.Scan(&idStr, &entry.Action, &entry.Resource, &entry.Timestamp, &details); err != nil {
			return nil, oops.Code("AUDIT_SCAN_FAILED").Wrap(err)
		}
		if entry.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("AUDIT_INVALID_ID").With("id", idStr).Wrap(err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, oops.Code("AUDIT_INVALID_DETAILS").With("id", idStr).Wrap(err)
			}
		}
		uid := userID
		entry.UserID = &uid
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_ROWS_ERROR").Wrap(err)
	}
	return entries, nil
}

var _ auth.AuditLog = (*AuditLog)(nil)

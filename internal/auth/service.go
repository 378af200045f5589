// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/fxg4n/m5/internal/apperr"
	"github.com/fxg4n/m5/internal/logging"
	"github.com/fxg4n/m5/internal/validation"
	"github.com/fxg4n/m5/pkg/errutil"
)

// Caller-facing messages. Authentication failures share one message so that
// responses never reveal whether an email is registered.
const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidSession     = "Invalid or expired session"
	msgWrongPassword      = "Current password is incorrect"
)

// AuthResult is returned to the client on successful authentication.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service orchestrates registration, authentication and session lifecycle.
// It holds no per-user state; all coordination happens in the stores.
type Service struct {
	users    UserRepository
	sessions SessionStore
	hasher   PasswordHasher
	audit    AuditLog
	metrics  Recorder
	lockout  LockoutStore
	clock    Clock
	random   io.Reader
	logger   *slog.Logger

	sessionDuration  time.Duration
	queryTimeout     time.Duration
	tokenAttempts    int
	collisionBackoff time.Duration
	lockoutThreshold int
	lockoutDuration  time.Duration

	// dummyHash is verified when the email is unknown so that both failure
	// paths cost one full hash computation.
	dummyHash string
}

// NewService creates a new Service. users, sessions and hasher are required.
func NewService(users UserRepository, sessions SessionStore, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}

	s := &Service{
		users:            users,
		sessions:         sessions,
		hasher:           hasher,
		audit:            nopAuditLog{},
		metrics:          nopRecorder{},
		clock:            SystemClock{},
		random:           rand.Reader,
		logger:           slog.Default(),
		sessionDuration:  DefaultSessionDuration,
		queryTimeout:     DefaultQueryTimeout,
		tokenAttempts:    DefaultTokenAttempts,
		collisionBackoff: defaultCollisionBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sessionDuration <= 0 {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("session_duration", s.sessionDuration).
			Errorf("session duration must be positive")
	}
	if s.queryTimeout <= 0 {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("query_timeout", s.queryTimeout).
			Errorf("query timeout must be positive")
	}
	if s.tokenAttempts < 1 {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("token_attempts", s.tokenAttempts).
			Errorf("token attempts must be at least 1")
	}
	if s.lockout != nil && (s.lockoutThreshold < 1 || s.lockoutDuration <= 0) {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("lockout_threshold", s.lockoutThreshold).
			With("lockout_duration", s.lockoutDuration).
			Errorf("lockout needs a positive threshold and duration")
	}

	seed := make([]byte, 16)
	if _, err := io.ReadFull(s.random, seed); err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").With("operation", "seed dummy hash").Wrap(err)
	}
	dummy, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").With("operation", "compute dummy hash").Wrap(err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates a user. The email must not already be registered,
// compared case-insensitively.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if err := validation.Check(
		validation.Field("email", email, validation.Required(), validation.Email()),
		validation.Field("password", password, validation.Password()),
	); err != nil {
		s.metrics.Registration(OutcomeValidation)
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.metrics.Registration(OutcomeError)
		return nil, s.internalError(ctx, err, "hash password")
	}

	user, err := NewUser(email, hash, s.clock.Now())
	if err != nil {
		s.metrics.Registration(OutcomeError)
		return nil, s.internalError(ctx, err, "build user")
	}

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.users.Create(qctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.metrics.Registration(OutcomeConflict)
			return nil, apperr.Conflict("email already registered")
		}
		s.metrics.Registration(OutcomeError)
		return nil, s.storeError(ctx, err, "create user")
	}

	s.metrics.Registration(OutcomeSuccess)
	s.record(ctx, &user.ID, AuditRegister, "user", nil)
	return user, nil
}

// Authenticate verifies credentials and issues a session.
// An unknown email and a wrong password fail identically, including the
// failure count toward a lockout.
func (s *Service) Authenticate(ctx context.Context, email, password, clientAddress string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	lockKey := NormalizeEmail(email)
	now := s.clock.Now()

	if remaining := s.lockedFor(ctx, lockKey, now); remaining > 0 {
		s.metrics.LoginAttempt(OutcomeLocked)
		s.record(ctx, nil, AuditLoginFailed, "session", map[string]any{
			"client_address": clientAddress,
			"reason":         OutcomeLocked,
		})
		return nil, apperr.RateLimit(retryAfterSeconds(remaining))
	}

	qctx, cancel := s.withTimeout(ctx)
	user, lookupErr := s.users.GetByEmail(qctx, email)
	cancel()

	targetHash := s.dummyHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		s.metrics.LoginAttempt(OutcomeError)
		return nil, s.storeError(ctx, lookupErr, "get user by email")
	}

	// Always verify so both failure paths take the same time.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		s.metrics.LoginAttempt(OutcomeError)
		return nil, s.internalError(ctx, verifyErr, "verify password")
	}

	if !exists || !valid {
		s.metrics.LoginAttempt(OutcomeInvalid)
		var uid *ulid.ULID
		if exists {
			uid = &user.ID
		}
		s.record(ctx, uid, AuditLoginFailed, "session", map[string]any{"client_address": clientAddress})
		s.recordFailure(ctx, lockKey, uid, now, clientAddress)
		return nil, apperr.Authentication(msgInvalidCredentials)
	}

	qctx, cancel = s.withTimeout(ctx)
	err := s.users.UpdateLastLogin(qctx, user.ID, now)
	cancel()
	if err != nil {
		s.metrics.LoginAttempt(OutcomeError)
		return nil, s.storeError(ctx, err, "update last login")
	}

	s.upgradeHash(ctx, user, password)

	session, token, err := s.issueSession(ctx, user.ID, now, clientAddress)
	if err != nil {
		s.metrics.LoginAttempt(OutcomeError)
		return nil, err
	}

	s.clearFailures(ctx, lockKey)
	s.metrics.LoginAttempt(OutcomeSuccess)
	s.metrics.SessionIssued()
	s.record(ctx, &user.ID, AuditLoginSucceeded, "session", map[string]any{
		"session_id":     session.ID.String(),
		"client_address": clientAddress,
	})
	return &AuthResult{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// lockedFor returns the time left on key's lock. Lockout store failures are
// logged and never block a login.
func (s *Service) lockedFor(ctx context.Context, key string, now time.Time) time.Duration {
	if s.lockout == nil {
		return 0
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	state, err := s.lockout.Get(qctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "lockout lookup failed", "email", logging.MaskEmail(key), "error", err)
		return 0
	}
	return state.RemainingAt(now)
}

func (s *Service) recordFailure(ctx context.Context, key string, uid *ulid.ULID, now time.Time, clientAddress string) {
	if s.lockout == nil {
		return
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	state, err := s.lockout.RecordFailure(qctx, key, now, s.lockoutThreshold, s.lockoutDuration)
	if err != nil {
		s.logger.WarnContext(ctx, "lockout failure not recorded", "email", logging.MaskEmail(key), "error", err)
		return
	}
	if !state.IsLockedAt(now) {
		return
	}
	s.logger.WarnContext(ctx, "login locked out",
		"email", logging.MaskEmail(key),
		"failures", state.Failures,
		"locked_until", state.LockedUntil.UTC())
	s.record(ctx, uid, AuditLoginLocked, "session", map[string]any{
		"client_address": clientAddress,
		"failures":       state.Failures,
	})
}

func (s *Service) clearFailures(ctx context.Context, key string) {
	if s.lockout == nil {
		return
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.lockout.Clear(qctx, key); err != nil {
		s.logger.WarnContext(ctx, "lockout not cleared", "email", logging.MaskEmail(key), "error", err)
	}
}

// upgradeHash rehashes with current parameters. Failures are logged and
// never fail the login.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID.String(), "error", err)
		return
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.users.UpdatePassword(qctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "password rehash not persisted", "user_id", user.ID.String(), "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// issueSession generates a token and stores its session, retrying with a
// fresh token on collision.
func (s *Service) issueSession(ctx context.Context, userID ulid.ULID, now time.Time, clientAddress string) (*Session, string, error) {
	var (
		session *Session
		token   string
	)
	expiresAt := now.Add(s.sessionDuration)
	backoff := retry.WithMaxRetries(uint64(s.tokenAttempts-1), retry.NewConstant(s.collisionBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tok, hash, err := GenerateSessionToken(s.random)
		if err != nil {
			return err
		}

		qctx, cancel := s.withTimeout(ctx)
		defer cancel()
		issued, err := s.sessions.Issue(qctx, userID, hash, now, expiresAt, clientAddress)
		if errors.Is(err, ErrTokenCollision) {
			s.logger.WarnContext(ctx, "session token collision", "user_id", userID.String())
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		session, token = issued, tok
		return nil
	})

	switch {
	case err == nil:
		return session, token, nil
	case errors.Is(err, ErrTokenCollision):
		return nil, "", s.internalError(ctx, oops.Code("SESSION_TOKEN_EXHAUSTED").
			With("attempts", s.tokenAttempts).
			Wrap(err), "issue session")
	case oopsCode(err) == "SESSION_TOKEN_GENERATE_FAILED":
		return nil, "", s.internalError(ctx, err, "generate session token")
	default:
		return nil, "", s.storeError(ctx, err, "issue session")
	}
}

// ValidateToken resolves a bearer token to its user. Unknown, expired and
// invalidated tokens fail with an Authentication error.
func (s *Service) ValidateToken(ctx context.Context, token string) (*User, error) {
	user, _, err := s.Resolve(ctx, token)
	return user, err
}

// Resolve is ValidateToken that also returns the session.
func (s *Service) Resolve(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		s.metrics.TokenValidation(OutcomeTokenInvalid)
		return nil, nil, apperr.Authentication(msgInvalidSession)
	}

	qctx, cancel := s.withTimeout(ctx)
	session, err := s.sessions.FindByToken(qctx, HashSessionToken(token), s.clock.Now())
	cancel()
	if errors.Is(err, ErrNotFound) {
		s.metrics.TokenValidation(OutcomeTokenInvalid)
		return nil, nil, apperr.Authentication(msgInvalidSession)
	}
	if err != nil {
		s.metrics.TokenValidation(OutcomeError)
		return nil, nil, s.storeError(ctx, err, "find session")
	}

	qctx, cancel = s.withTimeout(ctx)
	user, err := s.users.GetByID(qctx, session.UserID)
	cancel()
	if errors.Is(err, ErrNotFound) {
		s.metrics.TokenValidation(OutcomeTokenInvalid)
		return nil, nil, apperr.Authentication(msgInvalidSession)
	}
	if err != nil {
		s.metrics.TokenValidation(OutcomeError)
		return nil, nil, s.storeError(ctx, err, "get session user")
	}

	s.metrics.TokenValidation(OutcomeSuccess)
	return user, session, nil
}

// Logout invalidates the session for token. Unknown, empty and already
// invalidated tokens succeed without effect.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	invalidated, err := s.sessions.Invalidate(qctx, HashSessionToken(token), s.clock.Now())
	if err != nil {
		return s.storeError(ctx, err, "invalidate session")
	}
	if invalidated {
		s.record(ctx, nil, AuditLogout, "session", nil)
	}
	return nil
}

// LogoutAll invalidates every active session of the user and returns how
// many were invalidated.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.sessions.InvalidateAll(qctx, userID, s.clock.Now())
	if err != nil {
		return 0, s.storeError(ctx, err, "invalidate user sessions")
	}
	s.record(ctx, &userID, AuditLogoutAll, "session", map[string]any{"count": n})
	return n, nil
}

// ListSessions returns the user's active sessions.
func (s *Service) ListSessions(ctx context.Context, userID ulid.ULID) ([]*Session, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sessions, err := s.sessions.ListActive(qctx, userID, s.clock.Now())
	if err != nil {
		return nil, s.storeError(ctx, err, "list sessions")
	}
	return sessions, nil
}

// ChangePassword replaces the user's password after verifying the current
// one, then invalidates all of the user's sessions.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error {
	user, err := s.verifiedUser(ctx, userID, current)
	if err != nil {
		return err
	}

	if err := validation.Check(validation.Field("new_password", next, validation.Password())); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return s.internalError(ctx, err, "hash password")
	}

	qctx, cancel := s.withTimeout(ctx)
	err = s.users.UpdatePassword(qctx, user.ID, hash)
	cancel()
	if err != nil {
		return s.storeError(ctx, err, "update password")
	}

	n, err := s.LogoutAll(ctx, user.ID)
	if err != nil {
		return err
	}
	s.record(ctx, &user.ID, AuditPasswordChange, "user", map[string]any{"sessions_invalidated": n})
	return nil
}

// DeleteAccount removes the user after verifying password. The user's
// sessions are invalidated first.
func (s *Service) DeleteAccount(ctx context.Context, userID ulid.ULID, password string) error {
	user, err := s.verifiedUser(ctx, userID, password)
	if err != nil {
		return err
	}

	if _, err := s.LogoutAll(ctx, user.ID); err != nil {
		return err
	}

	// Recorded first: the entry must reference a user that still exists.
	// Deleting the user then clears its user_id.
	s.record(ctx, &user.ID, AuditAccountDelete, "user", nil)

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.users.Delete(qctx, user.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("user")
		}
		return s.storeError(ctx, err, "delete user")
	}
	return nil
}

// PruneExpired deletes inactive sessions and returns the count.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.sessions.PruneExpired(qctx, s.clock.Now())
	if err != nil {
		return 0, s.storeError(ctx, err, "prune expired sessions")
	}
	return n, nil
}

// AuditTrail returns the user's most recent audit entries.
func (s *Service) AuditTrail(ctx context.Context, userID ulid.ULID, limit int) ([]*AuditEntry, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	entries, err := s.audit.ListByUser(qctx, userID, limit)
	if err != nil {
		return nil, s.storeError(ctx, err, "list audit entries")
	}
	return entries, nil
}

func (s *Service) verifiedUser(ctx context.Context, userID ulid.ULID, password string) (*User, error) {
	qctx, cancel := s.withTimeout(ctx)
	user, err := s.users.GetByID(qctx, userID)
	cancel()
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, s.storeError(ctx, err, "get user")
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, s.internalError(ctx, err, "verify password")
	}
	if !ok {
		return nil, apperr.Authentication(msgWrongPassword)
	}
	return user, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// storeError classifies a persistence failure as a Database error after
// logging it. Errors already classified pass through.
func (s *Service) storeError(ctx context.Context, err error, op string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	errutil.LogErrorContext(ctx, s.logger, "store operation failed", oops.With("operation", op).Wrap(err))
	return apperr.Database(err, op)
}

func (s *Service) internalError(ctx context.Context, err error, op string) error {
	errutil.LogErrorContext(ctx, s.logger, "internal failure", oops.With("operation", op).Wrap(err))
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal(err)
}

// record writes an audit entry. Failures are logged only.
func (s *Service) record(ctx context.Context, userID *ulid.ULID, action, resource string, details map[string]any) {
	entry := &AuditEntry{
		ID:        ulid.Make(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Timestamp: s.clock.Now(),
		Details:   details,
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.audit.Record(qctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "action", action, "error", err)
	}
}

func oopsCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return ""
}

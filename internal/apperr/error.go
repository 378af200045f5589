// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ValidationError describes one violated field rule.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the service-wide failure value. Construct it with the kind
// helpers below rather than by hand so the Kind and payload stay consistent.
type Error struct {
	Kind Kind

	// Message is the non-sensitive detail shown to callers. Ignored for
	// KindInternal, whose outward message is fixed.
	Message string

	// Violations is only populated for KindValidation.
	Violations []ValidationError

	// RetryAfter is the throttling window in seconds for KindRateLimit.
	RetryAfter int

	// Service and UpstreamStatus describe a KindExternalService failure.
	Service        string
	UpstreamStatus int

	cause    error
	rendered string
}

// Error renders the message returned to callers in the envelope.
func (e *Error) Error() string {
	if e.rendered != "" {
		return e.rendered
	}
	display := e.Kind.info().display
	switch e.Kind {
	case KindInternal:
		return display
	case KindValidation:
		switch len(e.Violations) {
		case 0:
			return display
		case 1:
			return fmt.Sprintf("%s: %s", display, e.Violations[0].Message)
		default:
			fields := make([]string, 0, len(e.Violations))
			for _, v := range e.Violations {
				fields = append(fields, v.Field)
			}
			return fmt.Sprintf("%s: %d fields are invalid (%s)", display, len(e.Violations), strings.Join(fields, ", "))
		}
	case KindRateLimit:
		return fmt.Sprintf("%s. Try again in %d seconds", display, e.RetryAfter)
	case KindExternalService:
		return fmt.Sprintf("%s: %s - %s", display, e.Service, e.Message)
	}
	if e.Message == "" {
		return display
	}
	return display + ": " + e.Message
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int { return e.Kind.Status() }

// Authentication reports bad credentials or a missing/expired session.
func Authentication(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

// Authorization reports an actor lacking rights.
func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// Validation aggregates field violations into one error.
func Validation(violations []ValidationError) *Error {
	return &Error{Kind: KindValidation, Violations: violations}
}

// NotFound reports a missing entity.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Conflict reports a uniqueness violation.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Database wraps a persistence failure. op names the failed operation and is
// the only detail surfaced to callers; the driver error stays in the cause.
func Database(err error, op string) *Error {
	return &Error{Kind: KindDatabase, Message: op, cause: err}
}

// RateLimit reports throttling with the retry window in seconds.
func RateLimit(retryAfter int) *Error {
	return &Error{Kind: KindRateLimit, RetryAfter: retryAfter}
}

// ExternalService reports a dependent service failure. status may be zero.
func ExternalService(service, msg string, status int) *Error {
	return &Error{Kind: KindExternalService, Service: service, Message: msg, UpstreamStatus: status}
}

// InvalidInput reports a malformed request shape.
func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, cause: err}
}

// From classifies err. An *Error anywhere in the chain is returned as is;
// deadline and cancellation errors become KindDatabase; everything else
// becomes KindInternal. From(nil) returns nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Database(err, "operation timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Database(err, "operation canceled")
	}
	return Internal(err)
}

// KindOf returns the kind err classifies to.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	return From(err).Kind
}

// IsKind reports whether err classifies to kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

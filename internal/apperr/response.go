// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package apperr

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/samber/oops"
)

// fallbackBody is written when the envelope itself cannot be encoded.
const fallbackBody = `{"error":"internal_server_error","message":"Failed to serialize error","status_code":500}`

// Envelope is the canonical JSON error body. Field names are a compatibility
// contract shared with every client.
type Envelope struct {
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	StatusCode       int               `json:"status_code"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	ErrorCode        string            `json:"error_code,omitempty"`
	Help             string            `json:"help,omitempty"`
}

// NewEnvelope builds the envelope for err after classifying it.
func NewEnvelope(err error) Envelope {
	appErr := From(err)
	if appErr == nil {
		appErr = Internal(nil)
	}
	status := appErr.Kind.Status()
	env := Envelope{
		Error:      appErr.Kind.String(),
		Message:    appErr.Error(),
		StatusCode: status,
		ErrorCode:  "E" + strconv.Itoa(status),
		Help:       appErr.Kind.Help(),
	}
	if appErr.Kind == KindValidation {
		env.ValidationErrors = appErr.Violations
	}
	return env
}

// Marshal encodes the envelope for err, falling back to a fixed body if
// encoding fails.
func Marshal(err error) (int, []byte) {
	env := NewEnvelope(err)
	body, mErr := json.Marshal(env)
	if mErr != nil {
		return http.StatusInternalServerError, []byte(fallbackBody)
	}
	return env.StatusCode, body
}

// Write responds to w with the status and envelope for err.
func Write(w http.ResponseWriter, err error) {
	if appErr := From(err); appErr != nil && appErr.Kind == KindRateLimit && appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	status, body := Marshal(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body) //nolint:errcheck // client went away; nothing left to report
}

// Decode parses an envelope body back into an *Error with the same kind and
// validation payload.
func Decode(body []byte) (*Error, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, oops.Code("ENVELOPE_DECODE_FAILED").Wrap(err)
	}
	kind, ok := ParseKind(env.Error)
	if !ok {
		return nil, oops.Code("ENVELOPE_UNKNOWN_TYPE").
			With("type", env.Error).
			Errorf("unknown error type %q", env.Error)
	}
	if kind.Status() != env.StatusCode {
		return nil, oops.Code("ENVELOPE_STATUS_MISMATCH").
			With("type", env.Error).
			With("status_code", env.StatusCode).
			Errorf("status %d does not match type %q", env.StatusCode, env.Error)
	}
	return &Error{Kind: kind, Violations: env.ValidationErrors, rendered: env.Message}, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package apperr

import "net/http"

// Kind classifies a failure. The set is closed: every error leaving the
// service layer carries exactly one Kind.
type Kind int

// Failure kinds.
const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindNotFound
	KindConflict
	KindDatabase
	KindRateLimit
	KindExternalService
	KindInvalidInput
)

type kindInfo struct {
	status  int
	tag     string
	help    string
	display string
}

// kinds is the single source of truth for status codes, type tags and help
// text. TestKindTableIsExhaustive guards it against drift.
var kinds = map[Kind]kindInfo{
	KindAuthentication: {
		status:  http.StatusUnauthorized,
		tag:     "authentication_error",
		help:    "Please check your credentials and try again",
		display: "Authentication error",
	},
	KindAuthorization: {
		status:  http.StatusForbidden,
		tag:     "authorization_error",
		help:    "You don't have permission to perform this action",
		display: "Authorization error",
	},
	KindValidation: {
		status:  http.StatusBadRequest,
		tag:     "validation_error",
		help:    "Please check the input requirements",
		display: "Validation error",
	},
	KindNotFound: {
		status:  http.StatusNotFound,
		tag:     "not_found",
		display: "Not found",
	},
	KindConflict: {
		status:  http.StatusConflict,
		tag:     "conflict",
		display: "Conflict",
	},
	KindDatabase: {
		status:  http.StatusInternalServerError,
		tag:     "database_error",
		help:    "If the problem persists, please contact support",
		display: "Database error",
	},
	KindRateLimit: {
		status:  http.StatusTooManyRequests,
		tag:     "rate_limit_error",
		help:    "Please try again later",
		display: "Rate limit exceeded",
	},
	KindExternalService: {
		status:  http.StatusBadGateway,
		tag:     "external_service_error",
		help:    "The service is temporarily unavailable",
		display: "External service error",
	},
	KindInvalidInput: {
		status:  http.StatusBadRequest,
		tag:     "invalid_input",
		help:    "Please check your input and try again",
		display: "Invalid input",
	},
	KindInternal: {
		status:  http.StatusInternalServerError,
		tag:     "internal_error",
		help:    "If the problem persists, please contact support",
		display: "Internal server error",
	},
}

// AllKinds returns every defined Kind in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindInternal,
		KindAuthentication,
		KindAuthorization,
		KindValidation,
		KindNotFound,
		KindConflict,
		KindDatabase,
		KindRateLimit,
		KindExternalService,
		KindInvalidInput,
	}
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindInternal]
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int { return k.info().status }

// Help returns the optional help text for the kind.
func (k Kind) Help() string { return k.info().help }

// String returns the stable wire type tag, e.g. "authentication_error".
func (k Kind) String() string { return k.info().tag }

// ParseKind maps a wire type tag back to its Kind.
func ParseKind(tag string) (Kind, bool) {
	for k, info := range kinds {
		if info.tag == tag {
			return k, true
		}
	}
	return KindInternal, false
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth

import "errors"

// Sentinel errors returned by repository and store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by UserRepository.Create when the email is
	// already registered, compared case-insensitively.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrTokenCollision is returned by SessionStore.Issue when the token hash
	// is already stored.
	ErrTokenCollision = errors.New("session token collision")
)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package auth provides credential storage, session issuance and session
// invalidation for m5.
//
// # Domain Types
//
// User and Session should be created with their constructors:
//   - NewUser - creates a User with a fresh ID and an encoded password hash
//   - NewSession - creates a Session whose expiry follows its issue time
//
// A Session is active while the current time is before ExpiresAt. Logout
// sets ExpiresAt to the logout time; expiry needs no mutation at all. Both
// end states are terminal.
//
// # Stores
//
// UserRepository and SessionStore are implemented by the memory and postgres
// subpackages. Uniqueness of emails and token hashes is enforced by the store,
// never by a read before the write.
//
// # Services
//
// Service coordinates registration, authentication, token validation and
// logout, and classifies every failure into an apperr kind.
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package apperr defines the closed set of failure kinds returned by the
// identity service and the canonical JSON envelope they are rendered into.
//
// Each Kind maps to exactly one HTTP status, type tag and optional help text:
//
//	authentication_error   401
//	authorization_error    403
//	validation_error       400
//	not_found              404
//	conflict               409
//	database_error         500
//	rate_limit_error       429
//	external_service_error 502
//	invalid_input          400
//	internal_error         500
//
// The envelope's error_code is "E" followed by the status.
package apperr

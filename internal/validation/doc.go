// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package validation evaluates declarative per-field rules and reports every
// violated field at once.
//
// A field is a name, a value and an ordered list of rules. Validate runs every
// field and records the first failing rule of each, so a form with three bad
// fields yields three ValidationErrors in field order:
//
//	errs := validation.Validate(
//		validation.Field("email", in.Email, validation.Required(), validation.Email()),
//		validation.Field("password", in.Password, validation.Password()),
//	)
//
// Check wraps a non-empty result into a single apperr Validation error.
package validation

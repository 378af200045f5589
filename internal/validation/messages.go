// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package validation

import "fmt"

// Error codes produced by the built-in rules.
const (
	CodeRequired             = "required"
	CodePasswordTooShort     = "password_too_short"
	CodePasswordTooLong      = "password_too_long"
	CodePasswordRequirements = "password_requirements_not_met"
	CodeInvalidPhone         = "invalid_phone_number"
	CodeInvalidURL           = "invalid_url"
	CodeInvalidDate          = "invalid_date_format"
	CodeInvalidHexColor      = "invalid_hex_color"
	CodeInvalidIP            = "invalid_ip_address"
	CodeInvalidSlug          = "invalid_slug"
	CodeFileTooLarge         = "file_too_large"
	CodeInvalidFileExtension = "invalid_file_extension"
	CodeNoFileExtension      = "no_file_extension"
	CodeInvalidEmail         = "invalid_email"
	CodeEmailTooLong         = "email_too_long"
)

// Length limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
	MaxEmailLength    = 254
)

// Message returns the default human-readable message for code on field.
func Message(code, field string) string {
	switch code {
	case CodeRequired:
		return fmt.Sprintf("The field '%s' is required", field)
	case CodePasswordTooShort:
		return fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	case CodePasswordTooLong:
		return fmt.Sprintf("Password must not exceed %d characters", MaxPasswordLength)
	case CodePasswordRequirements:
		return "Password must contain uppercase, lowercase, number, and special character"
	case CodeInvalidPhone:
		return "Invalid phone number format"
	case CodeInvalidURL:
		return "Invalid URL format"
	case CodeInvalidDate:
		return "Date must be in YYYY-MM-DD format"
	case CodeInvalidHexColor:
		return "Invalid hex color code"
	case CodeInvalidIP:
		return "Invalid IP address"
	case CodeInvalidSlug:
		return "Invalid slug format"
	case CodeFileTooLarge:
		return fmt.Sprintf("File size exceeds maximum allowed for field '%s'", field)
	case CodeInvalidFileExtension:
		return "File type not allowed"
	case CodeNoFileExtension:
		return "File must have an extension"
	case CodeInvalidEmail:
		return "Invalid email format"
	case CodeEmailTooLong:
		return "Email address is too long"
	default:
		return fmt.Sprintf("Validation failed for field '%s'", field)
	}
}

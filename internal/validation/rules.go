// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package validation

import (
	"net/netip"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

var (
	emailPattern = regexp.MustCompile(
		"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?" +
			"(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")
	phonePattern    = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	urlPattern      = regexp.MustCompile(`^https?://[\w\-\.]+(:\d+)?(/[\w\-\./%\+@&#=\(\)]*)?$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hexColorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Required rejects empty or all-whitespace strings.
func Required() Rule[string] {
	return NewRule(func(v string) string {
		if strings.TrimSpace(v) == "" {
			return CodeRequired
		}
		return ""
	})
}

// Password enforces the byte length window and character composition. Length
// violations are reported before composition.
func Password() Rule[string] {
	return NewRule(checkPassword)
}

func checkPassword(v string) string {
	if len(v) < MinPasswordLength {
		return CodePasswordTooShort
	}
	if len(v) > MaxPasswordLength {
		return CodePasswordTooLong
	}

	var upper, lower, digit, special bool
	for _, r := range v {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
		if r >= '0' && r <= '9' {
			digit = true
		}
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return CodePasswordRequirements
	}
	return ""
}

// Email checks length, pattern, and the presence of both '@' and '.'.
func Email() Rule[string] {
	return NewRule(func(v string) string {
		if len(v) > MaxEmailLength {
			return CodeEmailTooLong
		}
		if !emailPattern.MatchString(v) {
			return CodeInvalidEmail
		}
		if !strings.Contains(v, "@") || !strings.Contains(v, ".") {
			return CodeInvalidEmail
		}
		return ""
	})
}

// Phone accepts E.164-style numbers with an optional leading '+'.
func Phone() Rule[string] { return patternRule(phonePattern, CodeInvalidPhone) }

// URL accepts http and https URLs.
func URL() Rule[string] { return patternRule(urlPattern, CodeInvalidURL) }

// Date accepts YYYY-MM-DD.
func Date() Rule[string] { return patternRule(datePattern, CodeInvalidDate) }

// HexColor accepts #rgb and #rrggbb.
func HexColor() Rule[string] { return patternRule(hexColorPattern, CodeInvalidHexColor) }

// Slug accepts lowercase alphanumeric words joined by single hyphens.
func Slug() Rule[string] { return patternRule(slugPattern, CodeInvalidSlug) }

// IP accepts IPv4 and IPv6 addresses without zones.
func IP() Rule[string] {
	return NewRule(func(v string) string {
		addr, err := netip.ParseAddr(v)
		if err != nil || addr.Zone() != "" {
			return CodeInvalidIP
		}
		return ""
	})
}

// FileSize rejects sizes above maxBytes.
func FileSize(maxBytes int64) Rule[int64] {
	return NewRule(func(size int64) string {
		if size > maxBytes {
			return CodeFileTooLarge
		}
		return ""
	})
}

// FileExtension requires the filename's extension, compared lowercase, to be
// one of allowed. Entries in allowed are given without the leading dot.
func FileExtension(allowed ...string) Rule[string] {
	normalized := make([]string, 0, len(allowed))
	for _, a := range allowed {
		normalized = append(normalized, strings.ToLower(strings.TrimPrefix(a, ".")))
	}
	return NewRule(func(filename string) string {
		idx := strings.LastIndexByte(filename, '.')
		if idx < 0 || idx == len(filename)-1 {
			return CodeNoFileExtension
		}
		if !slices.Contains(normalized, strings.ToLower(filename[idx+1:])) {
			return CodeInvalidFileExtension
		}
		return ""
	})
}

func patternRule(re *regexp.Regexp, code string) Rule[string] {
	return NewRule(func(v string) string {
		if !re.MatchString(v) {
			return code
		}
		return ""
	})
}

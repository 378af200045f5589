// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package logging

import "strings"

// Mask hides all but the last four characters of value.
func Mask(value string) string {
	const visible = 4
	if len(value) <= visible {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-visible) + value[len(value)-visible:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return Mask(email)
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}

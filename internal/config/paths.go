// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "m5"

// Dir returns the XDG config directory for m5.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultPath returns Dir()/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// ResolvePath returns explicit when set. Otherwise it returns DefaultPath
// if that file exists, or "" to load without a file.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path := DefaultPath()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

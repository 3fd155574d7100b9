// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package xdg provides XDG Base Directory paths for Inkwell.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "inkwell"

// ConfigFileName is the name of the optional configuration file.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for inkwell.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default configuration file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultString returns fallback if v is empty or whitespace-only, otherwise v
// unchanged.
//
//	DefaultString("clinic-vm", "x") → "clinic-vm"
//	DefaultString("   ", "x")       → "x"
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" for blank strings. Used for optional table columns.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}

// ExpandHome replaces a leading "~/" (or a bare "~") with the user's home
// directory. Paths without the prefix, and paths on systems where the home
// directory cannot be resolved, are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExecutableDir returns the directory where the current executable resides.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err == nil && strings.TrimSpace(exe) != "" {
		if resolved, resolveErr := filepath.EvalSymlinks(exe); resolveErr == nil && strings.TrimSpace(resolved) != "" {
			exe = resolved
		}
		return filepath.Dir(exe)
	}

	if wd, wdErr := os.Getwd(); wdErr == nil && strings.TrimSpace(wd) != "" {
		return wd
	}
	return "."
}

// ResolveConfigPath prefers name in the working directory and falls back to
// the executable directory.
func ResolveConfigPath(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(ExecutableDir(), name)
}

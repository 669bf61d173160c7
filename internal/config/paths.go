package config

import (
	"os"
	"path/filepath"
)

// DefaultStateDir returns the platform state directory: $XDG_STATE_HOME, or
// ~/.local/state. Returns "" when neither can be resolved.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" && filepath.IsAbs(dir) {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "state")
}

// DefaultRoot returns <state>/onoma, falling back to ./onoma (made
// absolute) when no state directory is resolvable.
func DefaultRoot() string {
	if state := DefaultStateDir(); state != "" {
		return filepath.Join(state, "onoma")
	}
	return absOrSelf("onoma")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	if dir := os.Getenv("ONOMA_STATE_DIR"); dir != "" {
		return filepath.Join(absOrSelf(dir), "onoma", "config.yaml")
	}
	return filepath.Join(DefaultRoot(), "config.yaml")
}

func absOrSelf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

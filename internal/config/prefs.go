package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds viewer preferences the TUI writes back on change.
type Prefs struct {
	Theme          string `toml:"theme"`
	ShowTimestamps bool   `toml:"show_timestamps"`
}

const (
	defaultPrefsPath = "~/.config/feedline/prefs.toml"
	defaultTheme     = "Nightfox"
)

// DefaultPrefsPath returns the default preferences file path.
func DefaultPrefsPath() string {
	return defaultPrefsPath
}

// LoadPrefs reads preferences from path. A missing or unreadable file is not
// an error: the viewer degrades to defaults.
func LoadPrefs(path string) Prefs {
	prefs := Prefs{Theme: defaultTheme, ShowTimestamps: true}

	resolved, err := resolvePath(path, defaultPrefsPath)
	if err != nil {
		return prefs
	}
	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return prefs
	}

	loaded := prefs
	if err := toml.Unmarshal(bytes, &loaded); err != nil {
		return prefs
	}
	if strings.TrimSpace(loaded.Theme) == "" {
		loaded.Theme = defaultTheme
	}
	return loaded
}

// SavePrefs writes p to path, creating directories as needed.
func SavePrefs(path string, p Prefs) error {
	resolved, err := resolvePath(path, defaultPrefsPath)
	if err != nil {
		return fmt.Errorf("resolve prefs path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("write prefs: permission denied for %s", resolved)
		}
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

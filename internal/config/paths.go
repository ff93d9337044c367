package config

import (
	"os"
	"path/filepath"
)

// UserStateDir returns the directory the host CLI uses to cache local state,
// such as the name of the most recently opened session (for --enable-readers
// convenience messaging). Created on first use.
func UserStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".shareterm")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

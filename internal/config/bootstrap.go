package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureUserConfig seeds dataDir/config.yml from the bundled default on
// first run. An existing user copy is never touched.
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure data dir: %w", err)
	}
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	seed, err := os.ReadFile(defaultPath)
	if err != nil {
		return "", fmt.Errorf("read default config: %w", err)
	}

	// Seed through a temp file so a crash never leaves a half-written
	// config that later runs would refuse to overwrite.
	tmp := userPath + ".tmp"
	if err := os.WriteFile(tmp, seed, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, userPath); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return userPath, nil
}

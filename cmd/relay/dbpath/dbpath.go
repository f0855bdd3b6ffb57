// Package dbpath resolves the transcript database location shared by the
// relay subcommands.
package dbpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolve picks the transcript database path: an explicit override wins,
// then the configured path, then ~/.relay/relay.db. The parent directory is
// created for file-backed paths. ":memory:" passes through untouched.
func Resolve(override, configured string) (string, error) {
	path := override
	if path == "" {
		path = configured
	}
	if path == ":memory:" {
		return path, nil
	}

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		path = filepath.Join(home, ".relay", "relay.db")
	} else if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("could not create database directory: %w", err)
	}
	return path, nil
}

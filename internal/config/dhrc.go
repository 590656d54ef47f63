package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const jifrcFile = ".jifrc"

// FindJIFRC walks up from startDir looking for a .jifrc file.
// Returns the path to the file if found, or empty string and nil if not found.
func FindJIFRC(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		candidate := filepath.Join(dir, jifrcFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// ReadJIFRC reads the windowing strategy name from a .jifrc file.
// The file is expected to contain just the strategy name (optionally with
// whitespace).
func ReadJIFRC(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading .jifrc: %w", err)
	}
	strategy := strings.TrimSpace(string(data))
	if strategy == "" {
		return "", fmt.Errorf(".jifrc is empty: %s", path)
	}
	return strategy, nil
}

// WriteJIFRC writes a windowing strategy name to a .jifrc file in the
// given directory.
func WriteJIFRC(dir, strategy string) error {
	path := filepath.Join(dir, jifrcFile)
	return os.WriteFile(path, []byte(strategy+"\n"), 0o644)
}

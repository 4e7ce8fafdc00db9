package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/netsweep/internal/constants"
)

// GlobalPath returns the path to the per-user state directory.
// On Unix: ~/.netsweep
// On Windows: %USERPROFILE%\.netsweep
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName), nil
}

// LocalPath returns the state directory for the given project root. A
// relative or absolute dir overrides the default location.
func LocalPath(projectRoot, dir string) string {
	if dir == "" {
		dir = constants.DirName
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectRoot, dir)
}

// EnsureGlobalDir creates the per-user state directory if it doesn't exist.
func EnsureGlobalDir() error {
	globalPath, err := GlobalPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(globalPath, 0755); err != nil {
		return fmt.Errorf("failed to create global %s directory: %w", constants.DirName, err)
	}

	return nil
}

package ingestion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBaseDir is returned when a file location escapes the allowed base directory.
var ErrOutsideBaseDir = errors.New("path is outside the allowed base directory")

// resolveInputPath checks that fileLocation exists, is a readable regular file
// and, when baseDir is set, lives inside it once symlinks are resolved.
func resolveInputPath(fileLocation, baseDir string) (string, error) {
	resolved, err := filepath.Abs(fileLocation)
	if err != nil {
		return "", fmt.Errorf("invalid input path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", resolved)
	}

	if strings.TrimSpace(baseDir) != "" {
		resolved, err = filepath.EvalSymlinks(resolved)
		if err != nil {
			return "", fmt.Errorf("cannot resolve input path: %w", err)
		}
		absBase, err := filepath.Abs(baseDir)
		if err != nil {
			return "", fmt.Errorf("invalid base directory: %w", err)
		}
		resolvedBase, err := filepath.EvalSymlinks(absBase)
		if err != nil {
			return "", fmt.Errorf("cannot resolve base directory: %w", err)
		}
		rel, err := filepath.Rel(resolvedBase, resolved)
		if err != nil {
			return "", fmt.Errorf("cannot compute relative path: %w", err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideBaseDir, rel)
		}
	}

	return resolved, nil
}

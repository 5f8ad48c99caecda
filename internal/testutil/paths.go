package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// FindProjectRoot walks up the directory tree from the current file to find go.mod
func FindProjectRoot() (string, error) {
	// Get the directory of the caller's source file
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)

	// Walk up the directory tree looking for go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// ExampleConfig returns the path of a file under configs/ in the project root
func ExampleConfig(name string) (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}

	path := filepath.Join(root, "configs", name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("example config %s: %w", name, err)
	}
	return path, nil
}

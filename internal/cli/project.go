// pattern: Imperative Shell
package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveProjectDir validates the project argument: it must be an existing,
// writable directory. The result is absolute with symlinks resolved, so two
// spellings of one directory map to the same project lock.
func ResolveProjectDir(arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	dir, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("project directory %s: %w", arg, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("project directory %s: %w", arg, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project path %s is not a directory", arg)
	}

	probe, err := os.CreateTemp(dir, ".unigen-write-*")
	if err != nil {
		return "", fmt.Errorf("project directory %s is not writable: %w", arg, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	return dir, nil
}

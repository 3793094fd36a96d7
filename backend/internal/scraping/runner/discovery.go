package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrNotFound indicates a configured program or script does not exist.
var ErrNotFound = errors.New("not found")

// Resolve locates the executable name would run as. A bare name is searched
// on PATH; anything containing a path separator must exist and be executable.
func Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("resolve executable: empty name: %w", ErrNotFound)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		if errors.Is(err, exec.ErrDot) {
			// A relative name found in the working directory is what the
			// operator configured, so accept it.
			return path, nil
		}

		return "", fmt.Errorf("resolve executable %q: %w: %w", name, ErrNotFound, err)
	}

	return path, nil
}

// CheckFile verifies that a script handed to an interpreter is a regular file.
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("check script %q: %w", path, ErrNotFound)
		}

		return fmt.Errorf("check script %q: %w", path, err)
	}

	if info.IsDir() {
		return fmt.Errorf("check script %q: is a directory", path)
	}

	return nil
}

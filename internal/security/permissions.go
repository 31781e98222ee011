// internal/security/permissions.go
package security

import (
	"fmt"
	"os"
)

// ValidateDirectoryPermissions checks that the render work directory is safe
// to create per-request scratch directories in. It must exist, be a directory,
// and must not be world-writable.
func ValidateDirectoryPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking directory permissions: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	mode := info.Mode()
	// A sticky world-writable dir such as /tmp is fine: nobody can remove our entries.
	if mode.Perm()&0002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("directory %s is world-writable without the sticky bit (mode %04o)", path, mode.Perm())
	}

	return nil
}

// EnsureWorkDir creates dir with mode 0700 when missing and validates it.
func EnsureWorkDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	return ValidateDirectoryPermissions(dir)
}

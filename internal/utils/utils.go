// Package utils holds small filesystem helpers shared across wit's
// packages.
package utils

import (
	"fmt"
	"io/fs"
	"os"
)

const defaultDirMode fs.FileMode = os.FileMode(0755) // 'rwxr-xr-x'

// ReCreate removes dir and any children it contains and creates a new,
// empty dir at the same path.
func ReCreate(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("can't delete unusable dir: %w", err)
	}
	if err := os.MkdirAll(path, defaultDirMode); err != nil {
		return fmt.Errorf("unable to create dir: %w", err)
	}
	return nil
}

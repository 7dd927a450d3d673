package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting returns an error if path already exists.
func CheckExisting(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("already initialized\n\nFound existing: %s\n\nUse 'init --force' to overwrite it", path)
	}
	return nil
}

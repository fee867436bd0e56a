package lock

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Common lock errors
var (
	ErrLockNotFound = errors.New("lock not found")
	ErrLockHeld     = errors.New("project is locked by another run")
)

// LockID identifies the locked resource: the cleaned absolute path of a project
type LockID struct {
	value string
}

// NewLockID creates a lock ID for a project directory. Relative paths are rejected
// so two spellings of the same directory never produce two locks.
func NewLockID(projectPath string) (LockID, error) {
	if projectPath == "" {
		return LockID{}, fmt.Errorf("lock ID cannot be empty")
	}
	if !filepath.IsAbs(projectPath) {
		return LockID{}, fmt.Errorf("lock ID must be an absolute path: %s", projectPath)
	}
	return LockID{value: filepath.Clean(projectPath)}, nil
}

// String returns the string representation of the lock ID
func (id LockID) String() string {
	return id.value
}

// Equals checks if two lock IDs are equal
func (id LockID) Equals(other LockID) bool {
	return id.value == other.value
}

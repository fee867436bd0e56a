//go:build windows
// +build windows

package fs

import (
	"os"
)

// flockExclusive is a no-op on Windows; callers still get in-process exclusion
// TODO: use LockFileEx so two c4h processes on Windows exclude each other
func flockExclusive(f *os.File) error {
	return nil
}

// flockUnlock is a no-op on Windows
func flockUnlock(f *os.File) error {
	return nil
}

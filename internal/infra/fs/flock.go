// Package fs holds OS-level file helpers that need a real file descriptor:
// advisory locks and locked appends.
package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// in-process locks keyed by absolute path; flock is a no-op on Windows
var (
	localMu    sync.Mutex
	localLocks = map[string]*sync.Mutex{}
)

func localLock(path string) *sync.Mutex {
	localMu.Lock()
	defer localMu.Unlock()
	mu, ok := localLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		localLocks[path] = mu
	}
	return mu
}

// WithFileLock runs fn while holding an exclusive advisory lock on lockPath.
// The lock file is created if needed and left in place.
func WithFileLock(lockPath string, fn func() error) error {
	abs, err := filepath.Abs(lockPath)
	if err != nil {
		return fmt.Errorf("resolve lock path %s: %w", lockPath, err)
	}

	mu := localLock(abs)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", abs, err)
	}
	defer f.Close()

	if err := flockExclusive(f); err != nil {
		return fmt.Errorf("lock %s: %w", abs, err)
	}
	defer flockUnlock(f)

	return fn()
}

// AppendNDJSONLine appends v as one JSON line to path under an exclusive lock
// and syncs the file
func AppendNDJSONLine(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal ndjson record: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := flockExclusive(f); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer flockUnlock(f)

	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

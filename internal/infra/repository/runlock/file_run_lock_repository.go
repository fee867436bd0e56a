package runlock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/repository"
	infrafs "github.com/foolishimp/c4h-intent-system-sub000/internal/infra/fs"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/persistence/file"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/proc"
)

const (
	lockSuffix = ".lock.json"
	mutexName  = ".mutex"
)

type lockRecord struct {
	LockID     string    `json:"lock_id"`
	RunID      string    `json:"run_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// FileRunLockRepository implements repository.RunLockRepository with one JSON
// file per lock under dir. Every read-modify-write holds a flock on dir/.mutex.
type FileRunLockRepository struct {
	dir string
	fs  afero.Fs

	processRunning func(pid int) bool
}

// NewFileRunLockRepository creates a lock repository rooted at dir on the OS filesystem
func NewFileRunLockRepository(dir string) repository.RunLockRepository {
	return &FileRunLockRepository{
		dir:            dir,
		fs:             afero.NewOsFs(),
		processRunning: proc.Running,
	}
}

func (r *FileRunLockRepository) withMutex(fn func() error) error {
	return infrafs.WithFileLock(filepath.Join(r.dir, mutexName), fn)
}

func (r *FileRunLockRepository) pathFor(id lock.LockID) string {
	sum := sha256.Sum256([]byte(id.String()))
	return filepath.Join(r.dir, hex.EncodeToString(sum[:8])+lockSuffix)
}

// Acquire takes the lock for runID, replacing a stale one
func (r *FileRunLockRepository) Acquire(ctx context.Context, lockID lock.LockID, runID string, ttl time.Duration) (*lock.RunLock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runLock, err := lock.NewRunLock(lockID, runID, ttl)
	if err != nil {
		return nil, fmt.Errorf("create run lock: %w", err)
	}

	err = r.withMutex(func() error {
		existing, err := r.read(r.pathFor(lockID))
		switch {
		case err == nil:
			if !r.isStale(existing) {
				return fmt.Errorf("%w: run %s (pid %d on %s) until %s",
					lock.ErrLockHeld, existing.RunID(), existing.PID(), existing.Hostname(),
					existing.ExpiresAt().Format(time.RFC3339))
			}
		case !errors.Is(err, lock.ErrLockNotFound):
			return err
		}
		return r.write(runLock)
	})
	if err != nil {
		return nil, err
	}
	return runLock, nil
}

func (r *FileRunLockRepository) isStale(l *lock.RunLock) bool {
	if l.IsExpired() {
		return true
	}
	hostname, err := os.Hostname()
	if err != nil || hostname != l.Hostname() {
		return false
	}
	return !r.processRunning(l.PID())
}

// Release removes the lock file while runID owns it. An absent lock is not an error.
func (r *FileRunLockRepository) Release(ctx context.Context, lockID lock.LockID, runID string) error {
	return r.withMutex(func() error {
		l, err := r.read(r.pathFor(lockID))
		if errors.Is(err, lock.ErrLockNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if l.RunID() != runID {
			return nil
		}
		if err := r.fs.Remove(r.pathFor(lockID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove run lock: %w", err)
		}
		return nil
	})
}

// Find retrieves a run lock by ID
func (r *FileRunLockRepository) Find(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error) {
	var found *lock.RunLock
	err := r.withMutex(func() error {
		l, err := r.read(r.pathFor(lockID))
		found = l
		return err
	})
	return found, err
}

// Refresh pushes the expiry of the lock held by runID ttl into the future
func (r *FileRunLockRepository) Refresh(ctx context.Context, lockID lock.LockID, runID string, ttl time.Duration) error {
	return r.withMutex(func() error {
		l, err := r.read(r.pathFor(lockID))
		if err != nil {
			return err
		}
		if l.RunID() != runID {
			return fmt.Errorf("%w: %s is held by run %s", lock.ErrLockNotFound, lockID, l.RunID())
		}
		l.Refresh(ttl)
		return r.write(l)
	})
}

// CleanupExpired removes expired lock files
func (r *FileRunLockRepository) CleanupExpired(ctx context.Context) (int, error) {
	removed := 0
	err := r.withMutex(func() error {
		locks, paths, err := r.readAll()
		if err != nil {
			return err
		}
		for i, l := range locks {
			if !l.IsExpired() {
				continue
			}
			if err := r.fs.Remove(paths[i]); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove expired lock: %w", err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// List lists all run locks, newest first
func (r *FileRunLockRepository) List(ctx context.Context) ([]*lock.RunLock, error) {
	var locks []*lock.RunLock
	err := r.withMutex(func() error {
		all, _, err := r.readAll()
		locks = all
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(locks, func(i, j int) bool {
		return locks[i].AcquiredAt().After(locks[j].AcquiredAt())
	})
	return locks, nil
}

func (r *FileRunLockRepository) readAll() ([]*lock.RunLock, []string, error) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read lock directory: %w", err)
	}

	var (
		locks []*lock.RunLock
		paths []string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), lockSuffix) {
			continue
		}
		p := filepath.Join(r.dir, e.Name())
		l, err := r.read(p)
		if err != nil {
			continue
		}
		locks = append(locks, l)
		paths = append(paths, p)
	}
	return locks, paths, nil
}

func (r *FileRunLockRepository) read(path string) (*lock.RunLock, error) {
	data, err := afero.ReadFile(r.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", lock.ErrLockNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read run lock: %w", err)
	}

	var rec lockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run lock %s: %w", path, err)
	}
	id, err := lock.NewLockID(rec.LockID)
	if err != nil {
		return nil, fmt.Errorf("invalid lock ID in %s: %w", path, err)
	}
	return lock.ReconstructRunLock(id, rec.RunID, rec.PID, rec.Hostname, rec.AcquiredAt, rec.ExpiresAt), nil
}

func (r *FileRunLockRepository) write(l *lock.RunLock) error {
	data, err := json.MarshalIndent(lockRecord{
		LockID:     l.LockID().String(),
		RunID:      l.RunID(),
		PID:        l.PID(),
		Hostname:   l.Hostname(),
		AcquiredAt: l.AcquiredAt(),
		ExpiresAt:  l.ExpiresAt(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run lock: %w", err)
	}
	return file.WriteFileAtomic(r.fs, r.pathFor(l.LockID()), data, file.DefaultPerm)
}

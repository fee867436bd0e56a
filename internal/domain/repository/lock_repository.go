package repository

import (
	"context"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
)

// RunLockRepository manages project run lock persistence
type RunLockRepository interface {
	// Acquire attempts to acquire the lock for a project on behalf of runID.
	// Returns lock.ErrLockHeld if a live lock is held by another process.
	// An expired lock is taken over.
	Acquire(ctx context.Context, lockID lock.LockID, runID string, ttl time.Duration) (*lock.RunLock, error)

	// Release releases the lock if runID still owns it. Releasing an absent
	// lock, or one taken over by another run, is not an error and leaves the
	// other run's lock in place.
	Release(ctx context.Context, lockID lock.LockID, runID string) error

	// Find retrieves a run lock by ID. Returns lock.ErrLockNotFound when absent.
	Find(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error)

	// Refresh pushes the expiry of the lock held by runID ttl into the future.
	// Returns lock.ErrLockNotFound when the lock is absent or owned by another run.
	Refresh(ctx context.Context, lockID lock.LockID, runID string, ttl time.Duration) error

	// CleanupExpired removes expired locks
	CleanupExpired(ctx context.Context) (int, error)

	// List lists all run locks
	List(ctx context.Context) ([]*lock.RunLock, error)
}

package lock

import (
	"fmt"
	"os"
	"time"
)

// RunLock marks a project as owned by one workflow run.
// Only one process may drive a run against a given project path at a time.
type RunLock struct {
	lockID     LockID
	runID      string
	pid        int
	hostname   string
	acquiredAt time.Time
	expiresAt  time.Time
}

// NewRunLock creates a lock for the current process
func NewRunLock(lockID LockID, runID string, ttl time.Duration) (*RunLock, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}

	now := time.Now().UTC()
	return &RunLock{
		lockID:     lockID,
		runID:      runID,
		pid:        os.Getpid(),
		hostname:   hostname,
		acquiredAt: now,
		expiresAt:  now.Add(ttl),
	}, nil
}

// ReconstructRunLock reconstructs a RunLock from persisted data
func ReconstructRunLock(lockID LockID, runID string, pid int, hostname string, acquiredAt, expiresAt time.Time) *RunLock {
	return &RunLock{
		lockID:     lockID,
		runID:      runID,
		pid:        pid,
		hostname:   hostname,
		acquiredAt: acquiredAt,
		expiresAt:  expiresAt,
	}
}

// IsExpired checks if the lock has expired
func (l *RunLock) IsExpired() bool {
	return time.Now().UTC().After(l.expiresAt)
}

// IsOwnedBy reports whether the lock belongs to the given process
func (l *RunLock) IsOwnedBy(pid int, hostname string) bool {
	return l.pid == pid && l.hostname == hostname
}

// Refresh pushes the expiry ttl into the future
func (l *RunLock) Refresh(ttl time.Duration) {
	l.expiresAt = time.Now().UTC().Add(ttl)
}

// Getters
func (l *RunLock) LockID() LockID               { return l.lockID }
func (l *RunLock) RunID() string                { return l.runID }
func (l *RunLock) PID() int                     { return l.pid }
func (l *RunLock) Hostname() string             { return l.hostname }
func (l *RunLock) AcquiredAt() time.Time        { return l.acquiredAt }
func (l *RunLock) ExpiresAt() time.Time         { return l.expiresAt }
func (l *RunLock) RemainingTime() time.Duration { return time.Until(l.expiresAt) }

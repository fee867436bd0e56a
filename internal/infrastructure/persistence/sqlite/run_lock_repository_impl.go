package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/repository"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/proc"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infrastructure/transaction"
)

// RunLockRepositoryImpl implements repository.RunLockRepository with SQLite
type RunLockRepositoryImpl struct {
	db *sql.DB
	tm *transaction.SQLiteTransactionManager

	// processRunning reports whether pid is alive on this host
	processRunning func(pid int) bool
}

// NewRunLockRepository creates a new SQLite-based run lock repository
func NewRunLockRepository(db *sql.DB) repository.RunLockRepository {
	return &RunLockRepositoryImpl{
		db:             db,
		tm:             transaction.NewSQLiteTransactionManager(db),
		processRunning: proc.Running,
	}
}

func (r *RunLockRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Acquire takes the lock for runID. A lock that has expired, or whose owner
// process on this host is gone, is stale and taken over.
func (r *RunLockRepositoryImpl) Acquire(ctx context.Context, lockID lock.LockID, runID string, ttl time.Duration) (*lock.RunLock, error) {
	runLock, err := lock.NewRunLock(lockID, runID, ttl)
	if err != nil {
		return nil, fmt.Errorf("create run lock: %w", err)
	}

	err = r.tm.InTransaction(ctx, func(txCtx context.Context) error {
		existing, err := r.Find(txCtx, lockID)
		switch {
		case err == nil:
			if !r.isStale(existing) {
				return fmt.Errorf("%w: run %s (pid %d on %s) until %s",
					lock.ErrLockHeld, existing.RunID(), existing.PID(), existing.Hostname(),
					existing.ExpiresAt().Format(time.RFC3339))
			}
			if _, err := r.getDB(txCtx).ExecContext(txCtx,
				`DELETE FROM run_locks WHERE lock_id = ?`, lockID.String(),
			); err != nil {
				return fmt.Errorf("delete stale run lock: %w", err)
			}
		case !errors.Is(err, lock.ErrLockNotFound):
			return err
		}

		_, err = r.getDB(txCtx).ExecContext(txCtx, `
			INSERT INTO run_locks (lock_id, run_id, pid, hostname, acquired_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			runLock.LockID().String(),
			runLock.RunID(),
			runLock.PID(),
			runLock.Hostname(),
			formatTime(runLock.AcquiredAt()),
			formatTime(runLock.ExpiresAt()),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: acquired concurrently", lock.ErrLockHeld)
			}
			return fmt.Errorf("insert run lock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runLock, nil
}

func (r *RunLockRepositoryImpl) isStale(l *lock.RunLock) bool {
	if l.IsExpired() {
		return true
	}
	hostname, err := os.Hostname()
	if err != nil || hostname != l.Hostname() {
		// a process on another host cannot be probed; wait for expiry
		return false
	}
	return !r.processRunning(l.PID())
}

// Release deletes the lock only while runID owns it
func (r *RunLockRepositoryImpl) Release(ctx context.Context, lockID lock.LockID, runID string) error {
	if _, err := r.getDB(ctx).ExecContext(ctx,
		`DELETE FROM run_locks WHERE lock_id = ? AND run_id = ?`, lockID.String(), runID,
	); err != nil {
		return fmt.Errorf("delete run lock: %w", err)
	}
	return nil
}

// Find retrieves a run lock by ID
func (r *RunLockRepositoryImpl) Find(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error) {
	row := r.getDB(ctx).QueryRowContext(ctx, `
		SELECT lock_id, run_id, pid, hostname, acquired_at, expires_at
		FROM run_locks
		WHERE lock_id = ?
	`, lockID.String())

	l, err := scanRunLock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", lock.ErrLockNotFound, lockID.String())
	}
	return l, err
}

// Refresh pushes the expiry of the lock held by runID ttl into the future
func (r *RunLockRepositoryImpl) Refresh(ctx context.Context, lockID lock.LockID, runID string, ttl time.Duration) error {
	result, err := r.getDB(ctx).ExecContext(ctx,
		`UPDATE run_locks SET expires_at = ? WHERE lock_id = ? AND run_id = ?`,
		formatTime(time.Now().Add(ttl)), lockID.String(), runID,
	)
	if err != nil {
		return fmt.Errorf("refresh run lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", lock.ErrLockNotFound, lockID.String())
	}
	return nil
}

// CleanupExpired removes expired locks
func (r *RunLockRepositoryImpl) CleanupExpired(ctx context.Context) (int, error) {
	result, err := r.getDB(ctx).ExecContext(ctx,
		`DELETE FROM run_locks WHERE expires_at < ?`, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired locks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(rows), nil
}

// List lists all run locks, newest first
func (r *RunLockRepositoryImpl) List(ctx context.Context) ([]*lock.RunLock, error) {
	rows, err := r.getDB(ctx).QueryContext(ctx, `
		SELECT lock_id, run_id, pid, hostname, acquired_at, expires_at
		FROM run_locks
		ORDER BY acquired_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query run locks: %w", err)
	}
	defer rows.Close()

	var locks []*lock.RunLock
	for rows.Next() {
		l, err := scanRunLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run locks: %w", err)
	}
	return locks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunLock(row rowScanner) (*lock.RunLock, error) {
	var (
		lockIDStr  string
		runID      string
		pid        int
		hostname   string
		acquiredAt string
		expiresAt  string
	)
	if err := row.Scan(&lockIDStr, &runID, &pid, &hostname, &acquiredAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run lock: %w", err)
	}

	acquiredAtTime, err := parseTime(acquiredAt)
	if err != nil {
		return nil, fmt.Errorf("parse acquired_at: %w", err)
	}
	expiresAtTime, err := parseTime(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	lid, err := lock.NewLockID(lockIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid lock ID: %w", err)
	}

	return lock.ReconstructRunLock(lid, runID, pid, hostname, acquiredAtTime, expiresAtTime), nil
}

// isUniqueConstraintError checks if the error is a UNIQUE constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

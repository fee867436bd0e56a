// Package txn applies single-file changes with numbered backups and rollback.
//
// Every mutation of an existing file first copies it to <path>.bak_NNN, where
// NNN is one more than the highest backup already on disk. Backups of a
// modified or deleted file are never removed by this package; the backup of a
// file replaced by a create is removed once the write succeeds. A failed
// produce or write restores the original bytes before the error is returned.
package txn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/persistence/file"
)

// Mutator applies one change to one file at a time per path.
// Different paths may be mutated concurrently.
type Mutator struct {
	fs      afero.Fs
	locks   *pathLocks
	logger  app.Logger
	metrics output.MetricsRecorder
}

// Option configures a Mutator
type Option func(*Mutator)

// WithLogger sets the logger
func WithLogger(l app.Logger) Option {
	return func(m *Mutator) { m.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(r output.MetricsRecorder) Option {
	return func(m *Mutator) { m.metrics = r }
}

// NewMutator creates a mutator over fs
func NewMutator(fs afero.Fs, opts ...Option) *Mutator {
	m := &Mutator{
		fs:      fs,
		locks:   newPathLocks(),
		logger:  app.NopLogger(),
		metrics: output.NopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply performs kind on path. produce is called for create and modify and
// ignored for delete. The context is checked once before any side effect;
// after that the mutation always finishes its commit or rollback.
func (m *Mutator) Apply(ctx context.Context, path string, kind execution.ChangeKind, produce ContentProducer) outcome.Outcome[Result] {
	if path == "" {
		return outcome.Failure[Result](outcome.InvalidInput, "path is empty")
	}
	if !kind.IsValid() {
		return outcome.Failure[Result](outcome.InvalidInput, fmt.Sprintf("unknown change kind %q", kind))
	}
	if kind != execution.ChangeDelete && produce == nil {
		return outcome.Failure[Result](outcome.InvalidInput, "content producer is required for "+kind.String())
	}
	if err := ctx.Err(); err != nil {
		return outcome.Failure[Result](outcome.TransientFailure, fmt.Sprintf("%s %s cancelled: %v", kind, path, err))
	}

	unlock := m.locks.lock(path)
	defer unlock()

	info, err := m.fs.Stat(path)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return m.fail(outcome.TransientFailure, &TxnError{Path: path, Operation: "stat", Err: err})
	}
	if exists && info.IsDir() {
		return outcome.Failure[Result](outcome.InvalidInput, fmt.Sprintf("%s is a directory", path))
	}

	result := Result{Path: path, Kind: kind, Existed: exists}
	perm := file.DefaultPerm
	var original []byte

	if exists {
		perm = info.Mode().Perm()
		original, err = afero.ReadFile(m.fs, path)
		if err != nil {
			return m.fail(outcome.TransientFailure, &TxnError{Path: path, Operation: "read", Err: err})
		}
		backup, err := m.backup(path, original, perm)
		if err != nil {
			return m.fail(outcome.TransientFailure, &TxnError{Path: path, Operation: "backup", Err: err})
		}
		result.Backup = backup
	}

	if kind == execution.ChangeDelete {
		if exists {
			if err := m.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return m.fail(outcome.TransientFailure, &TxnError{Path: path, Operation: "delete", Err: err})
			}
		}
		m.logger.Info("deleted %s (backup %s)", path, result.BackupPath())
		return outcome.Success(result)
	}

	content, err := safeProduce(ctx, produce, original)
	if err != nil {
		return m.rollback(path, original, exists, perm, outcome.MergeFailed, &TxnError{Path: path, Operation: "produce", Err: err})
	}

	if err := file.WriteFileAtomic(m.fs, path, content, perm); err != nil {
		return m.rollback(path, original, exists, perm, outcome.TransientFailure, &TxnError{Path: path, Operation: "write", Err: err})
	}

	if kind == execution.ChangeCreate && result.Backup != nil {
		if err := m.fs.Remove(result.Backup.BackupPath); err != nil {
			m.logger.Warn("failed to remove backup %s after create: %v", result.Backup.BackupPath, err)
		} else {
			result.Backup = nil
		}
	}

	m.logger.Info("%s %s (backup %q)", kind, path, result.BackupPath())
	return outcome.Success(result)
}

// Backups lists the numbered backups of path, oldest first
func (m *Mutator) Backups(path string) ([]BackupRecord, error) {
	unlock := m.locks.lock(path)
	defer unlock()
	return listBackups(m.fs, path)
}

// Restore copies backup number n back over path. A negative n selects the
// highest numbered backup. No new backup is created and the backup restored
// from stays on disk.
func (m *Mutator) Restore(path string, n int) (*BackupRecord, error) {
	unlock := m.locks.lock(path)
	defer unlock()

	records, err := listBackups(m.fs, path)
	if err != nil {
		return nil, &TxnError{Path: path, Operation: "restore", Err: err}
	}
	if len(records) == 0 {
		return nil, &TxnError{Path: path, Operation: "restore", Err: fmt.Errorf("no backups found")}
	}

	var rec *BackupRecord
	if n < 0 {
		rec = &records[len(records)-1]
	} else {
		for i := range records {
			if records[i].Number == n {
				rec = &records[i]
				break
			}
		}
		if rec == nil {
			return nil, &TxnError{Path: path, Operation: "restore", Err: fmt.Errorf("backup %s not found", BackupName(path, n))}
		}
	}

	data, err := afero.ReadFile(m.fs, rec.BackupPath)
	if err != nil {
		return nil, &TxnError{Path: path, Operation: "restore", Err: err}
	}
	perm := file.DefaultPerm
	if info, err := m.fs.Stat(rec.BackupPath); err == nil {
		perm = info.Mode().Perm()
	}
	if err := file.WriteFileAtomic(m.fs, path, data, perm); err != nil {
		return nil, &TxnError{Path: path, Operation: "restore", Err: err}
	}
	rec.Checksum = checksum(data)

	m.logger.Info("restored %s from %s", path, rec.BackupPath)
	return rec, nil
}

func (m *Mutator) backup(path string, data []byte, perm os.FileMode) (*BackupRecord, error) {
	records, err := listBackups(m.fs, path)
	if err != nil {
		return nil, err
	}
	rec, err := writeBackup(m.fs, path, nextBackupNumber(records), data, perm)
	if err != nil {
		return nil, err
	}
	m.metrics.BackupCreated()
	m.logger.Debug("backup %s -> %s (%s)", path, rec.BackupPath, rec.Checksum)
	return rec, nil
}

// rollback returns path to its pre-mutation state: the original bytes when it
// existed, absence otherwise. If rollback itself fails the failure is reported
// as transient with the backup location, never as a clean MergeFailed.
func (m *Mutator) rollback(path string, original []byte, existed bool, perm os.FileMode, kind outcome.ErrorKind, cause *TxnError) outcome.Outcome[Result] {
	m.metrics.Rollback()

	var err error
	if existed {
		err = file.WriteFileAtomic(m.fs, path, original, perm)
	} else if rmErr := m.fs.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = rmErr
	}

	if err != nil {
		m.logger.Error("rollback of %s failed: %v", path, err)
		return m.fail(outcome.TransientFailure, &TxnError{
			Path:      path,
			Operation: "rollback",
			Err:       fmt.Errorf("%v (after %s failure: %v); restore manually from the latest %s%s* file", err, cause.Operation, cause.Err, filepath.Base(path), BackupSuffix),
		})
	}

	cause.RolledBack = true
	m.logger.Warn("rolled back %s: %v", path, cause)
	return m.fail(kind, cause)
}

func (m *Mutator) fail(kind outcome.ErrorKind, err *TxnError) outcome.Outcome[Result] {
	return outcome.Failure[Result](kind, err.Error())
}

// safeProduce converts a producer panic into an error so rollback still runs
func safeProduce(ctx context.Context, produce ContentProducer, original []byte) (content []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content producer panicked: %v", r)
		}
	}()
	return produce(ctx, original)
}

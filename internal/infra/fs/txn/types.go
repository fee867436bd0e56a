package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
)

// BackupRecord describes one numbered backup of a file
type BackupRecord struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	Number       int       `json:"number"`
	Checksum     string    `json:"checksum,omitempty"` // sha256, set when the mutator created the backup
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// Result is the successful outcome of one mutation
type Result struct {
	Path    string
	Kind    execution.ChangeKind
	Existed bool          // Path existed before the mutation
	Backup  *BackupRecord // Retained backup, nil when none was created or it was removed after a create
}

// BackupPath returns the retained backup path or ""
func (r Result) BackupPath() string {
	if r.Backup == nil {
		return ""
	}
	return r.Backup.BackupPath
}

// ContentProducer returns the full intended content of a file.
// original is nil when the file does not exist yet.
type ContentProducer func(ctx context.Context, original []byte) ([]byte, error)

// TxnError represents mutation-specific errors
type TxnError struct {
	// File being mutated
	Path string

	// Operation that failed: backup, produce, write, delete, rollback, restore
	Operation string

	// Underlying error
	Err error

	// Whether the file was restored to its prior content before the error surfaced
	RolledBack bool
}

// Error implements the error interface
func (e *TxnError) Error() string {
	state := "not rolled back"
	if e.RolledBack {
		state = "rolled back"
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Operation, e.Path, state, e.Err)
}

// Unwrap returns the underlying error
func (e *TxnError) Unwrap() error {
	return e.Err
}

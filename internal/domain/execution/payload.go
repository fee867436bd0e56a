package execution

import (
	"fmt"
	"time"
)

// FileMeta describes one discovered file. The orchestrator never interprets it.
type FileMeta struct {
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	SHA256   string    `json:"sha256,omitempty"`
	Language string    `json:"language,omitempty"`
	Content  string    `json:"content,omitempty"` // only for small text files
	Binary   bool      `json:"binary,omitempty"`
}

// DiscoveryPayload is the discovery stage output, keyed by slash-separated relative path
type DiscoveryPayload struct {
	Root  string              `json:"root"`
	Files map[string]FileMeta `json:"files"`
}

// ChangeKind is the kind of mutation a proposed change performs
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
)

// String returns the string representation of the change kind
func (k ChangeKind) String() string {
	return string(k)
}

// IsValid returns true if the change kind is valid
func (k ChangeKind) IsValid() bool {
	switch k {
	case ChangeCreate, ChangeModify, ChangeDelete:
		return true
	default:
		return false
	}
}

// ParseChangeKind parses a change kind, accepting a few common aliases
func ParseChangeKind(s string) (ChangeKind, error) {
	switch s {
	case "create", "add", "new":
		return ChangeCreate, nil
	case "modify", "update", "edit", "change":
		return ChangeModify, nil
	case "delete", "remove":
		return ChangeDelete, nil
	default:
		return "", fmt.Errorf("unknown change kind %q", s)
	}
}

// Change is one proposed file change from the solution stage
type Change struct {
	Path         string     `json:"path"`
	Kind         ChangeKind `json:"kind"`
	Instructions string     `json:"instructions"`
}

// FileStatus is the per-file result of the edit stage
type FileStatus string

const (
	FileApplied FileStatus = "applied"
	FileFailed  FileStatus = "failed"
)

// FileResult is the edit stage outcome for one change
type FileResult struct {
	Path       string     `json:"path"`
	Kind       ChangeKind `json:"kind"`
	Status     FileStatus `json:"status"`
	BackupPath string     `json:"backup_path,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// IsApplied returns true if the change was written
func (r FileResult) IsApplied() bool {
	return r.Status == FileApplied
}

// CheckResult is the result of one validation check
type CheckResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// ValidationReport is the validate stage output
type ValidationReport struct {
	Passed      bool          `json:"passed"`
	Checks      []CheckResult `json:"checks"`
	Diagnostics string        `json:"diagnostics,omitempty"`
}

// FailedChecks returns the names of checks that did not pass
func (r ValidationReport) FailedChecks() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

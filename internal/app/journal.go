package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	infrafs "github.com/foolishimp/c4h-intent-system-sub000/internal/infra/fs"
)

// JournalWriter appends normalized entries to an NDJSON journal file
type JournalWriter struct {
	path string
}

// NewJournalWriter creates a new JournalWriter instance
func NewJournalWriter(path string) *JournalWriter {
	return &JournalWriter{path: path}
}

// Path returns the journal file location
func (w *JournalWriter) Path() string {
	return w.path
}

// Append writes a normalized entry as one line
func (w *JournalWriter) Append(entry output.JournalEntry) error {
	e := NormalizeJournalEntry(entry)
	if err := validateJournal(e); err != nil {
		return fmt.Errorf("journal entry rejected: %w", err)
	}
	return infrafs.AppendNDJSONLine(w.path, e)
}

// NormalizeJournalEntry fills missing fields so every line has the same shape
func NormalizeJournalEntry(e output.JournalEntry) output.JournalEntry {
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	e.Ts = e.Ts.UTC()
	if e.Step == "" {
		e.Step = "unknown"
	}
	if e.Artifacts == nil {
		e.Artifacts = []string{}
	}
	if e.ElapsedMs < 0 {
		e.ElapsedMs = 0
	}
	return e
}

func validateJournal(e output.JournalEntry) error {
	if e.RunID == "" {
		return errors.New("run_id is empty")
	}
	switch e.Decision {
	case output.DecisionOK, output.DecisionNeedsChanges, output.DecisionFailed:
	default:
		return fmt.Errorf("invalid decision %q: must be OK, NEEDS_CHANGES or FAILED", e.Decision)
	}
	return nil
}

// ReadJournal returns the entries of runID in file order. An empty runID
// returns every entry. A missing journal is empty. Malformed lines are skipped.
func ReadJournal(path, runID string) ([]output.JournalEntry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []output.JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e output.JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if runID == "" || e.RunID == runID {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal %s: %w", path, err)
	}
	return entries, nil
}

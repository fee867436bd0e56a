package output

import (
	"time"
)

// Journal decisions
const (
	DecisionOK           = "OK"
	DecisionNeedsChanges = "NEEDS_CHANGES"
	DecisionFailed       = "FAILED"
)

// JournalEntry is one line of the run journal: a finished stage, or the
// finished run itself when Step is "run"
type JournalEntry struct {
	Ts        time.Time `json:"ts"`
	RunID     string    `json:"run_id"`
	Turn      int       `json:"turn"`
	Step      string    `json:"step"`
	Decision  string    `json:"decision"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Error     string    `json:"error"`
	Artifacts []string  `json:"artifacts"`
}

// RunJournal appends journal entries. Implementations must be safe for concurrent use.
type RunJournal interface {
	Append(entry JournalEntry) error
}

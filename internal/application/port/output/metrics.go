package output

import (
	"time"
)

// MetricsRecorder receives engine events for export. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	ProviderAttempt(backend string, err error, d time.Duration)
	BackendSkipped(backend string)
	StageFinished(stage string, result string, d time.Duration)
	BackupCreated()
	Rollback()
	RunFinished(status string, iterations int)
}

// NopMetrics discards all events
type NopMetrics struct{}

func (NopMetrics) ProviderAttempt(string, error, time.Duration) {}
func (NopMetrics) BackendSkipped(string)                        {}
func (NopMetrics) StageFinished(string, string, time.Duration)  {}
func (NopMetrics) BackupCreated()                               {}
func (NopMetrics) Rollback()                                    {}
func (NopMetrics) RunFinished(string, int)                      {}

package dto

import (
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
)

// RunLockDTO describes who holds a project run lock
type RunLockDTO struct {
	LockID     string    `json:"lock_id"`
	RunID      string    `json:"run_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Expired    bool      `json:"expired"`
}

// NewRunLockDTO converts a run lock
func NewRunLockDTO(l *lock.RunLock) RunLockDTO {
	return RunLockDTO{
		LockID:     l.LockID().String(),
		RunID:      l.RunID(),
		PID:        l.PID(),
		Hostname:   l.Hostname(),
		AcquiredAt: l.AcquiredAt(),
		ExpiresAt:  l.ExpiresAt(),
		Expired:    l.IsExpired(),
	}
}

// ArtifactDTO is one archived artifact of a run
type ArtifactDTO struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	StoragePath string            `json:"storage_path"`
	Size        int64             `json:"size"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewArtifactDTO converts archive metadata
func NewArtifactDTO(m *output.ArtifactMetadata) ArtifactDTO {
	return ArtifactDTO{
		ID:          m.ID,
		Type:        string(m.Type),
		StoragePath: m.StoragePath,
		Size:        m.Size,
		UploadedAt:  m.UploadedAt,
		Metadata:    m.Metadata,
	}
}

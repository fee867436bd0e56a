package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/persistence/file"
)

const (
	stateFile = "state.json"
	metaFile  = "meta.yml"
)

// Meta is the small per-run summary written next to state.json. Listing runs
// reads only these files.
type Meta struct {
	ID          string    `yaml:"id"`
	ProjectPath string    `yaml:"project_path"`
	Intent      string    `yaml:"intent"`
	Status      string    `yaml:"status"`
	Iteration   int       `yaml:"iteration"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// FileStateRepository is a file-based implementation of execution.StateRepository.
// Each run is stored as <dir>/<run-id>/state.json plus meta.yml.
type FileStateRepository struct {
	FS  afero.Fs
	Dir string
}

// NewFileStateRepository creates a new file-based state repository rooted at dir
func NewFileStateRepository(fs afero.Fs, dir string) *FileStateRepository {
	return &FileStateRepository{FS: fs, Dir: dir}
}

// Save writes state.json and meta.yml atomically
func (r *FileStateRepository) Save(ctx context.Context, s *execution.WorkflowState) error {
	if s == nil || s.ID == "" {
		return execution.ErrInvalidRun.WithDetails(map[string]interface{}{"reason": "state has no id"})
	}
	runDir := filepath.Join(r.Dir, s.ID.String())

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}
	if err := file.WriteFileAtomic(r.FS, filepath.Join(runDir, stateFile), data, file.DefaultPerm); err != nil {
		return fmt.Errorf("write %s: %w", stateFile, err)
	}

	meta := Meta{
		ID:          s.ID.String(),
		ProjectPath: s.ProjectPath,
		Intent:      s.Intent,
		Status:      string(s.Status),
		Iteration:   s.Iteration,
		UpdatedAt:   s.UpdatedAt,
	}
	metaData, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}
	if err := file.WriteFileAtomic(r.FS, filepath.Join(runDir, metaFile), metaData, file.DefaultPerm); err != nil {
		return fmt.Errorf("write %s: %w", metaFile, err)
	}
	return nil
}

// FindByID loads the state of one run
func (r *FileStateRepository) FindByID(ctx context.Context, id execution.RunID) (*execution.WorkflowState, error) {
	if id == "" || filepath.Base(id.String()) != id.String() {
		return nil, execution.ErrRunNotFound.WithDetails(map[string]interface{}{"id": id.String()})
	}

	data, err := afero.ReadFile(r.FS, filepath.Join(r.Dir, id.String(), stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, execution.ErrRunNotFound.WithDetails(map[string]interface{}{"id": id.String()})
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}

	var s execution.WorkflowState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	if s.Stages == nil {
		s.Stages = make(map[execution.Stage]*execution.StageRecord)
	}
	return &s, nil
}

// FindRecent returns up to limit runs ordered by meta.yml updated_at, newest
// first. A non-positive limit returns every run. Directories without a
// readable meta.yml are skipped.
func (r *FileStateRepository) FindRecent(ctx context.Context, limit int) ([]*execution.WorkflowState, error) {
	metas, err := r.ListMeta()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}

	states := make([]*execution.WorkflowState, 0, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := r.FindByID(ctx, execution.RunID(m.ID))
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

// ListMeta reads every meta.yml, newest first
func (r *FileStateRepository) ListMeta() ([]Meta, error) {
	entries, err := afero.ReadDir(r.FS, r.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state directory %s: %w", r.Dir, err)
	}

	var metas []Meta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := afero.ReadFile(r.FS, filepath.Join(r.Dir, e.Name(), metaFile))
		if err != nil {
			continue
		}
		var m Meta
		if err := yaml.Unmarshal(data, &m); err != nil || m.ID != e.Name() {
			continue
		}
		metas = append(metas, m)
	}

	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].UpdatedAt.Equal(metas[j].UpdatedAt) {
			return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
		}
		return metas[i].ID > metas[j].ID
	})
	return metas, nil
}

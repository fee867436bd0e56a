package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/persistence/file"
)

// LocalStorageGateway implements StorageGateway on a filesystem.
// Directory structure: <baseDir>/<runID>/<artifactID>/
//   - content: actual artifact content
//   - metadata.json: artifact metadata
type LocalStorageGateway struct {
	fs      afero.Fs
	baseDir string
}

// NewLocalStorageGateway creates a filesystem storage gateway rooted at baseDir
func NewLocalStorageGateway(fs afero.Fs, baseDir string) *LocalStorageGateway {
	return &LocalStorageGateway{fs: fs, baseDir: baseDir}
}

// SaveArtifact writes content then metadata, each atomically
func (g *LocalStorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	if err := validRunID(req.RunID); err != nil {
		return nil, err
	}
	artifactID := generateArtifactID(req.Content)
	artifactDir := filepath.Join(g.baseDir, req.RunID, artifactID)

	contentPath := filepath.Join(artifactDir, contentObject)
	if err := file.WriteFileAtomic(g.fs, contentPath, req.Content, file.DefaultPerm); err != nil {
		return nil, fmt.Errorf("write artifact content: %w", err)
	}

	metadata := newMetadata(artifactID, req, contentPath)
	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := file.WriteFileAtomic(g.fs, filepath.Join(artifactDir, metadataObject), metadataJSON, file.DefaultPerm); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact searches every run directory for artifactID
func (g *LocalStorageGateway) LoadArtifact(ctx context.Context, artifactID string) (*output.Artifact, error) {
	runs, err := afero.ReadDir(g.fs, g.baseDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("search artifact: %w", err)
	}

	for _, run := range runs {
		if !run.IsDir() {
			continue
		}
		dir := filepath.Join(g.baseDir, run.Name(), artifactID)
		metadata, err := g.readMetadata(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		content, err := afero.ReadFile(g.fs, filepath.Join(dir, contentObject))
		if err != nil {
			return nil, fmt.Errorf("read content: %w", err)
		}
		return &output.Artifact{ID: artifactID, Content: content, Metadata: *metadata}, nil
	}

	return nil, fmt.Errorf("artifact not found: %s", artifactID)
}

// ListArtifacts lists artifacts for a run, oldest first
func (g *LocalStorageGateway) ListArtifacts(ctx context.Context, runID string) ([]*output.ArtifactMetadata, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	runDir := filepath.Join(g.baseDir, runID)

	entries, err := afero.ReadDir(g.fs, runDir)
	if errors.Is(err, os.ErrNotExist) {
		return []*output.ArtifactMetadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run artifacts directory: %w", err)
	}

	list := []*output.ArtifactMetadata{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadata, err := g.readMetadata(filepath.Join(runDir, entry.Name()))
		if err != nil {
			// skip artifacts with missing or invalid metadata
			continue
		}
		list = append(list, metadata)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UploadedAt.Before(list[j].UploadedAt) })
	return list, nil
}

func (g *LocalStorageGateway) readMetadata(dir string) (*output.ArtifactMetadata, error) {
	data, err := afero.ReadFile(g.fs, filepath.Join(dir, metadataObject))
	if err != nil {
		return nil, err
	}
	var metadata output.ArtifactMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &metadata, nil
}

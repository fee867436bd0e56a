// Package storage archives run artifacts on the local filesystem or in S3.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
)

const (
	contentObject  = "content"
	metadataObject = "metadata.json"
)

// NewStorageGateway builds the archive selected by cfg. Archive type "none"
// returns a nil gateway. localDir is the resolved archive.local_dir.
func NewStorageGateway(ctx context.Context, cfg config.ArchiveConfig, localDir string) (output.StorageGateway, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "local":
		return NewLocalStorageGateway(afero.NewOsFs(), localDir), nil
	case "s3":
		gw, err := NewS3StorageGateway(ctx, S3Config{
			BucketName: cfg.S3.Bucket,
			Prefix:     cfg.S3.Prefix,
			Region:     cfg.S3.Region,
			Endpoint:   cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}

// generateArtifactID returns a content hash prefix plus a nanosecond timestamp
func generateArtifactID(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(hash[:8]), time.Now().UnixNano())
}

func validRunID(runID string) error {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}

func newMetadata(id string, req output.SaveArtifactRequest, storagePath string) output.ArtifactMetadata {
	return output.ArtifactMetadata{
		ID:          id,
		RunID:       req.RunID,
		Type:        req.ArtifactType,
		StoragePath: storagePath,
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		UploadedAt:  time.Now().UTC(),
		Metadata:    req.Metadata,
	}
}

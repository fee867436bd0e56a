package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
)

func stateRequest(runID, body string) output.SaveArtifactRequest {
	return output.SaveArtifactRequest{
		RunID:        runID,
		ArtifactType: output.ArtifactTypeState,
		Content:      []byte(body),
		ContentType:  "application/json",
		Metadata:     map[string]string{"status": "succeeded"},
	}
}

func TestS3StorageGateway_SaveAndLoadArtifact(t *testing.T) {
	client := newMockS3Client()
	gateway := NewS3StorageGatewayWithClient(client, "test-bucket", "/c4h/prod/")
	ctx := context.Background()

	meta, err := gateway.SaveArtifact(ctx, stateRequest("01RUN", `{"status":"succeeded"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "01RUN", meta.RunID)
	assert.Equal(t, output.ArtifactTypeState, meta.Type)
	assert.Equal(t, int64(22), meta.Size)
	assert.Equal(t, fmt.Sprintf("s3://test-bucket/c4h/prod/runs/01RUN/%s/content", meta.ID), meta.StoragePath)
	assert.Equal(t, 2, client.objectCount())

	obj, ok := client.object(fmt.Sprintf("c4h/prod/runs/01RUN/%s/content", meta.ID))
	require.True(t, ok)
	assert.Equal(t, "01RUN", obj.metadata["run-id"])
	assert.Equal(t, "state", obj.metadata["artifact-type"])
	assert.Equal(t, "succeeded", obj.metadata["status"])

	artifact, err := gateway.LoadArtifact(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"succeeded"}`, string(artifact.Content))
	assert.Equal(t, "01RUN", artifact.Metadata.RunID)
	assert.Equal(t, "succeeded", artifact.Metadata.Metadata["status"])
}

func TestS3StorageGateway_LoadArtifact_NotFound(t *testing.T) {
	gateway := NewS3StorageGatewayWithClient(newMockS3Client(), "b", "")

	_, err := gateway.LoadArtifact(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifact not found")
}

func TestS3StorageGateway_ListArtifactsPaginates(t *testing.T) {
	client := newMockS3Client()
	client.pageSize = 2
	gateway := NewS3StorageGatewayWithClient(client, "b", "p")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := gateway.SaveArtifact(ctx, stateRequest("run-a", fmt.Sprintf("a%d", i)))
		require.NoError(t, err)
	}
	_, err := gateway.SaveArtifact(ctx, stateRequest("run-b", "b"))
	require.NoError(t, err)

	list, err := gateway.ListArtifacts(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, m := range list {
		assert.Equal(t, "run-a", m.RunID)
	}
	assert.Greater(t, client.lists, 1, "six keys with page size two need several pages")

	empty, err := gateway.ListArtifacts(ctx, "run-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestS3StorageGateway_UploadError(t *testing.T) {
	client := newMockS3Client()
	client.putErr = errors.New("access denied")
	gateway := NewS3StorageGatewayWithClient(client, "b", "")

	_, err := gateway.SaveArtifact(context.Background(), stateRequest("r", "x"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "upload to S3"))
}

func TestS3StorageGateway_RejectsBadRunID(t *testing.T) {
	gateway := NewS3StorageGatewayWithClient(newMockS3Client(), "b", "")

	for _, id := range []string{"", "..", "a/b"} {
		_, err := gateway.SaveArtifact(context.Background(), stateRequest(id, "x"))
		assert.Error(t, err, "run id %q", id)
	}
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
)

// S3StorageGateway implements StorageGateway using AWS S3
// Bucket structure: s3://<bucket>/<prefix>/runs/<runID>/<artifactID>/
//   - content: actual artifact content
//   - metadata.json: artifact metadata
type S3StorageGateway struct {
	client     S3API
	bucketName string
	prefix     string
}

// S3Config holds S3 storage gateway configuration
type S3Config struct {
	BucketName string
	Prefix     string // Optional key prefix
	Region     string // Uses the SDK default chain if empty
	Endpoint   string // Custom endpoint for S3-compatible stores; enables path-style addressing
}

// NewS3StorageGateway creates a new S3-based storage gateway
func NewS3StorageGateway(ctx context.Context, cfg S3Config) (*S3StorageGateway, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StorageGatewayWithClient(client, cfg.BucketName, cfg.Prefix), nil
}

// NewS3StorageGatewayWithClient creates a gateway over an existing client
func NewS3StorageGatewayWithClient(client S3API, bucketName, prefix string) *S3StorageGateway {
	return &S3StorageGateway{
		client:     client,
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}
}

// SaveArtifact uploads content, then a metadata.json object next to it
func (g *S3StorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	if err := validRunID(req.RunID); err != nil {
		return nil, err
	}
	artifactID := generateArtifactID(req.Content)
	contentKey := g.buildKey("runs", req.RunID, artifactID, contentObject)

	s3Metadata := map[string]string{
		"artifact-id":   artifactID,
		"run-id":        req.RunID,
		"artifact-type": string(req.ArtifactType),
		"uploaded-at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range req.Metadata {
		s3Metadata[k] = v
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(contentKey),
		Body:        bytes.NewReader(req.Content),
		ContentType: aws.String(contentType),
		Metadata:    s3Metadata,
	}); err != nil {
		return nil, fmt.Errorf("upload to S3: %w", err)
	}

	metadata := newMetadata(artifactID, req, fmt.Sprintf("s3://%s/%s", g.bucketName, contentKey))
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(g.buildKey("runs", req.RunID, artifactID, metadataObject)),
		Body:        bytes.NewReader(metadataJSON),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return nil, fmt.Errorf("upload metadata to S3: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact finds artifactID under any run and downloads it
func (g *S3StorageGateway) LoadArtifact(ctx context.Context, artifactID string) (*output.Artifact, error) {
	keys, err := g.listKeys(ctx, g.buildKey("runs")+"/")
	if err != nil {
		return nil, err
	}

	suffix := "/" + artifactID + "/" + metadataObject
	var metadataKey string
	for _, key := range keys {
		if strings.HasSuffix(key, suffix) {
			metadataKey = key
			break
		}
	}
	if metadataKey == "" {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}

	metadata, err := g.readMetadata(ctx, metadataKey)
	if err != nil {
		return nil, err
	}

	contentKey := strings.TrimSuffix(metadataKey, metadataObject) + contentObject
	content, err := g.download(ctx, contentKey)
	if err != nil {
		return nil, fmt.Errorf("download content from S3: %w", err)
	}

	return &output.Artifact{ID: artifactID, Content: content, Metadata: *metadata}, nil
}

// ListArtifacts lists artifacts for a run, oldest first
func (g *S3StorageGateway) ListArtifacts(ctx context.Context, runID string) ([]*output.ArtifactMetadata, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	keys, err := g.listKeys(ctx, g.buildKey("runs", runID)+"/")
	if err != nil {
		return nil, err
	}

	list := []*output.ArtifactMetadata{}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+metadataObject) {
			continue
		}
		metadata, err := g.readMetadata(ctx, key)
		if err != nil {
			// skip artifacts whose metadata cannot be read
			continue
		}
		list = append(list, metadata)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UploadedAt.Before(list[j].UploadedAt) })
	return list, nil
}

func (g *S3StorageGateway) listKeys(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucketName),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (g *S3StorageGateway) readMetadata(ctx context.Context, key string) (*output.ArtifactMetadata, error) {
	data, err := g.download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download metadata from S3: %w", err)
	}
	var metadata output.ArtifactMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &metadata, nil
}

func (g *S3StorageGateway) download(ctx context.Context, key string) ([]byte, error) {
	obj, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

// buildKey joins parts under the configured prefix
func (g *S3StorageGateway) buildKey(parts ...string) string {
	if g.prefix != "" {
		parts = append([]string{g.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

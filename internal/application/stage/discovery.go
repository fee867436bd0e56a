package stage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

const (
	defaultMaxFileBytes = 64 * 1024
	binarySniffBytes    = 8000
)

// Discovery scans the project tree and describes every included file
type Discovery struct {
	fs           afero.Fs
	include      *pathMatcher
	exclude      *pathMatcher
	maxFileBytes int64
	workers      int
	logger       app.Logger
}

// NewDiscovery creates the discovery executor
func NewDiscovery(fs afero.Fs, cfg config.DiscoveryConfig, logger app.Logger) (*Discovery, error) {
	include, err := newPathMatcher(cfg.Include)
	if err != nil {
		return nil, fmt.Errorf("discovery include: %w", err)
	}
	exclude, err := newPathMatcher(cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("discovery exclude: %w", err)
	}
	if logger == nil {
		logger = app.NopLogger()
	}
	d := &Discovery{
		fs:           fs,
		include:      include,
		exclude:      exclude,
		maxFileBytes: cfg.MaxFileBytes,
		workers:      cfg.Workers,
		logger:       logger,
	}
	if d.maxFileBytes <= 0 {
		d.maxFileBytes = defaultMaxFileBytes
	}
	if d.workers <= 0 {
		d.workers = 4
	}
	return d, nil
}

var _ output.DiscoveryExecutor = (*Discovery)(nil)

// Execute walks in.ProjectPath. An empty result is a failure: there is
// nothing for the solution stage to reason about.
func (d *Discovery) Execute(ctx context.Context, in output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload] {
	root := in.ProjectPath
	if root == "" {
		return outcome.Failure[execution.DiscoveryPayload](outcome.InvalidInput, "project path is empty")
	}
	info, err := d.fs.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return outcome.Failure[execution.DiscoveryPayload](outcome.InvalidInput, fmt.Sprintf("project path %s does not exist", root))
		}
		return outcome.Failure[execution.DiscoveryPayload](outcome.TransientFailure, fmt.Sprintf("stat %s: %v", root, err))
	}
	if !info.IsDir() {
		return outcome.Failure[execution.DiscoveryPayload](outcome.InvalidInput, fmt.Sprintf("project path %s is not a directory", root))
	}

	paths, err := d.collect(ctx, root)
	if err != nil {
		return outcome.Failure[execution.DiscoveryPayload](outcome.TransientFailure, fmt.Sprintf("scan %s: %v", root, err))
	}
	if len(paths) == 0 {
		return outcome.Failure[execution.DiscoveryPayload](outcome.InvalidInput, fmt.Sprintf("no files discovered under %s", root))
	}

	metas := make([]execution.FileMeta, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			meta, err := d.describe(resolve(root, rel), rel)
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			metas[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcome.Failure[execution.DiscoveryPayload](outcome.TransientFailure, fmt.Sprintf("scan %s: %v", root, err))
	}

	payload := execution.DiscoveryPayload{Root: root, Files: make(map[string]execution.FileMeta, len(paths))}
	for i, rel := range paths {
		payload.Files[rel] = metas[i]
	}
	d.logger.Info("discovered %d files under %s", len(paths), root)
	return outcome.Success(payload)
}

// collect returns the included relative paths in lexical order
func (d *Discovery) collect(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := afero.Walk(d.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if d.exclude.matchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if d.exclude.match(rel) {
			return nil
		}
		if !d.include.empty() && !d.include.match(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

func (d *Discovery) describe(full, rel string) (execution.FileMeta, error) {
	info, err := d.fs.Stat(full)
	if err != nil {
		return execution.FileMeta{}, err
	}
	data, err := afero.ReadFile(d.fs, full)
	if err != nil {
		return execution.FileMeta{}, err
	}
	sum := sha256.Sum256(data)
	meta := execution.FileMeta{
		Size:     info.Size(),
		ModTime:  info.ModTime().UTC(),
		SHA256:   hex.EncodeToString(sum[:]),
		Language: languageOf(rel),
		Binary:   isBinary(data),
	}
	if !meta.Binary && int64(len(data)) <= d.maxFileBytes {
		meta.Content = string(data)
	}
	return meta, nil
}

func isBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffBytes {
		sniff = sniff[:binarySniffBytes]
	}
	return bytes.IndexByte(sniff, 0) >= 0 || !utf8.Valid(trimPartialRune(sniff))
}

// trimPartialRune drops a rune cut in half by the sniff window
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// Package sink publishes finished report files to object storage.
package sink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
)

// ErrObjectNotFound is returned by Fetch for a key that was never published.
var ErrObjectNotFound = apperrors.NewSinkError(apperrors.CodeObjectNotFound, "object not found", nil)

// Sink stores report artifacts under string keys.
type Sink interface {
	// Publish copies the local file at localPath to key.
	Publish(ctx context.Context, localPath, key string) error

	// Fetch copies key back to localPath.
	Fetch(ctx context.Context, key, localPath string) error

	// Exists reports whether key has been published.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// New returns the S3 sink when a bucket is configured, a local archive when
// only ArchiveDir is set, and nil otherwise.
func New(ctx context.Context, cfg config.ReportConfig) (Sink, error) {
	switch {
	case cfg.S3.Bucket != "":
		return NewS3(ctx, cfg.S3)
	case cfg.ArchiveDir != "":
		return NewLocal(cfg.ArchiveDir)
	}
	return nil, nil
}

// Describe names where s stores objects, for logs and CLI output.
func Describe(cfg config.ReportConfig) string {
	if cfg.S3.Bucket != "" {
		return "s3://" + path.Join(cfg.S3.Bucket, cfg.S3.Prefix)
	}
	return cfg.ArchiveDir
}

// Key lays out report objects as <prefix>/<run id>/<file name>.
func Key(prefix, runID, name string) string {
	return path.Join(prefix, runID, name)
}

// PublishRun uploads every file of a run and returns the keys written.
func PublishRun(ctx context.Context, s Sink, prefix, runID string, files ...string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := Key(prefix, runID, path.Base(f))
		if err := s.Publish(ctx, f, key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Runs returns the distinct run ids published under prefix, sorted.
func Runs(ctx context.Context, s Sink, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var runs []string
	for _, k := range keys {
		id, _, ok := strings.Cut(strings.TrimPrefix(k, prefix), "/")
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}

// FetchRun downloads every file of a run into destDir and returns the local
// paths. A run with no objects is reported as ErrObjectNotFound.
func FetchRun(ctx context.Context, s Sink, prefix, runID, destDir string) ([]string, error) {
	keys, err := s.List(ctx, Key(prefix, runID, "")+"/")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrObjectNotFound
	}
	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := s.Exists(ctx, key)
		if err != nil {
			return paths, err
		}
		if !ok {
			continue
		}
		dest := filepath.Join(destDir, path.Base(key))
		if err := s.Fetch(ctx, key, dest); err != nil {
			return paths, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

// retry runs op up to maxRetries+1 times with exponential backoff starting at
// base. Not found and non-retryable errors return immediately.
func retry(ctx context.Context, maxRetries int, base time.Duration, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}
		var be *apperrors.BenchError
		if errors.As(lastErr, &be) && !be.Retryable() {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("sink: giving up after %d attempts: %w", maxRetries+1, lastErr)
}

package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLocal_PublishFetch(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	src := writeFile(t, t.TempDir(), "report.json", `{"run_id":"r1"}`)
	key := Key("bench", "r1", "report.json")
	require.NoError(t, s.Publish(ctx, src, key))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	dst := filepath.Join(t.TempDir(), "nested", "copy.json")
	require.NoError(t, s.Fetch(ctx, key, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `{"run_id":"r1"}`, string(data))
}

func TestLocal_FetchMissing(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	err = s.Fetch(context.Background(), "nope.json", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, ErrObjectNotFound)

	ok, err := s.Exists(context.Background(), "nope.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_PublishMissingSource(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	err = s.Publish(context.Background(), filepath.Join(t.TempDir(), "absent"), "k")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUploadFailed, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestPublishRun_ListsKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "benchmark_report.json", "{}"),
		writeFile(t, dir, "ugcbench.prom", "# empty\n"),
	}
	keys, err := PublishRun(ctx, s, "runs", "abc", files...)
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/abc/benchmark_report.json", "runs/abc/ugcbench.prom"}, keys)

	listed, err := s.List(ctx, "runs/abc/")
	require.NoError(t, err)
	assert.Equal(t, keys, listed)

	listed, err = s.List(ctx, "runs/zzz/")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRunsAndFetchRun(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	report := writeFile(t, dir, "benchmark_report.json", `{"run_id":"b"}`)
	prom := writeFile(t, dir, "ugcbench.prom", "# empty\n")
	_, err = PublishRun(ctx, s, "runs", "b", report, prom)
	require.NoError(t, err)
	_, err = PublishRun(ctx, s, "runs", "a", report)
	require.NoError(t, err)
	_, err = PublishRun(ctx, s, "other", "c", report)
	require.NoError(t, err)

	runs, err := Runs(ctx, s, "runs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, runs)

	dest := t.TempDir()
	paths, err := FetchRun(ctx, s, "runs", "b", dest)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dest, "benchmark_report.json"),
		filepath.Join(dest, "ugcbench.prom"),
	}, paths)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, `{"run_id":"b"}`, string(data))

	_, err = FetchRun(ctx, s, "runs", "zzz", dest)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNew_NoBucketMeansNoSink(t *testing.T) {
	s, err := New(context.Background(), config.ReportConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestNew_ArchiveDirMeansLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	cfg := config.ReportConfig{ArchiveDir: dir}
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &Local{}, s)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, Describe(cfg))

	cfg.S3 = config.S3Config{Bucket: "reports", Prefix: "ugc"}
	assert.Equal(t, "s3://reports/ugc", Describe(cfg))
}

func TestRetry_BacksOffOnRetryable(t *testing.T) {
	attempts := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return apperrors.NewSinkError(apperrors.CodeUploadFailed, "flaky", errors.New("503"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNotFoundAndPermanent(t *testing.T) {
	attempts := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return ErrObjectNotFound
	})
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = retry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return apperrors.NewValidationError(apperrors.CodeInvalidConfig, "bad bucket")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_GivesUp(t *testing.T) {
	attempts := 0
	err := retry(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return apperrors.NewSinkError(apperrors.CodeUploadFailed, "down", errors.New("503"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, apperrors.CodeUploadFailed, apperrors.GetCode(err))
}

func TestRetry_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := retry(ctx, 3, time.Millisecond, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("a/b.json"))
	assert.Equal(t, "text/plain; version=0.0.4", contentType("x.prom"))
	assert.Equal(t, "application/octet-stream", contentType("x.bin"))
}

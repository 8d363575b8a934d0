package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/internal/stream"
	"github.com/arkilian/ugcbench/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAdapter struct {
	batches []int
	failAt  int
}

func (r *recordingAdapter) Name() string                  { return "fake" }
func (r *recordingAdapter) Setup(ctx context.Context) error { return nil }
func (r *recordingAdapter) Close() error                  { return nil }

func (r *recordingAdapter) WriteBatch(ctx context.Context, entity types.Entity, batch []types.Record) error {
	if r.failAt > 0 && len(r.batches)+1 == r.failAt {
		return errors.New("connection reset")
	}
	r.batches = append(r.batches, len(batch))
	return nil
}

func (r *recordingAdapter) Write(ctx context.Context, rec types.Record) error {
	return r.WriteBatch(ctx, rec.Entity(), []types.Record{rec})
}

func (r *recordingAdapter) PointQuery(ctx context.Context, q types.Query) (types.QueryResult, error) {
	return types.QueryResult{Kind: q.Kind}, nil
}

func (r *recordingAdapter) IsVisible(ctx context.Context, p types.Predicate) (bool, error) {
	return true, nil
}

func likes(n int) []types.Record {
	out := make([]types.Record, n)
	at := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = types.LikeEvent{UserID: int64(i + 1), MovieID: 1, Rating: 8, CreatedAt: at}
	}
	return out
}

func TestBulkInsert_ExactBatchFlushesOnce(t *testing.T) {
	a := &recordingAdapter{}
	rows, err := BulkInsert(context.Background(), a, types.EntityLikes, stream.FromSlice(likes(10_000)), 10_000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), rows)
	assert.Equal(t, []int{10_000}, a.batches)
}

func TestBulkInsert_FlushesTrailingPartialBatch(t *testing.T) {
	a := &recordingAdapter{}
	var seen []int64
	rows, err := BulkInsert(context.Background(), a, types.EntityLikes, stream.FromSlice(likes(250)), 100,
		func(batch int, rows int64) { seen = append(seen, rows) })
	require.NoError(t, err)
	assert.Equal(t, int64(250), rows)
	assert.Equal(t, []int{100, 100, 50}, a.batches)
	assert.Equal(t, []int64{100, 200, 250}, seen)
}

func TestBulkInsert_EmptyStream(t *testing.T) {
	a := &recordingAdapter{}
	rows, err := BulkInsert(context.Background(), a, types.EntityLikes, stream.FromSlice(nil), 100, nil)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Empty(t, a.batches)
}

func TestBulkInsert_RepeatedCallsAppend(t *testing.T) {
	a := &recordingAdapter{}
	total := int64(0)
	for i := 0; i < 3; i++ {
		n, err := BulkInsert(context.Background(), a, types.EntityLikes, stream.FromSlice(likes(30)), 20, nil)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, int64(90), total)
	assert.Equal(t, []int{20, 10, 20, 10, 20, 10}, a.batches)
}

func TestBulkInsert_FailedBatchCarriesContext(t *testing.T) {
	a := &recordingAdapter{failAt: 2}
	rows, err := BulkInsert(context.Background(), a, types.EntityLikes, stream.FromSlice(likes(50)), 20, nil)
	require.Error(t, err)
	assert.Equal(t, int64(20), rows)
	assert.Equal(t, apperrors.ErrCategoryIngest, apperrors.GetCategory(err))
	assert.Equal(t, apperrors.CodeBatchFailed, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "fake: write batch likes")
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, apperrors.IsRetryable(err))
}

func TestBulkInsert_RejectsForeignRecords(t *testing.T) {
	a := &recordingAdapter{}
	src := stream.FromSlice([]types.Record{types.Bookmark{UserID: 1, MovieID: 1}})
	_, err := BulkInsert(context.Background(), a, types.EntityLikes, src, 10, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnsupportedRecord)
}

func TestBulkInsert_RejectsZeroBatch(t *testing.T) {
	_, err := BulkInsert(context.Background(), &recordingAdapter{}, types.EntityLikes, stream.FromSlice(likes(1)), 0, nil)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.GetCode(err))
}

func TestRegistry(t *testing.T) {
	Register("fake-test", func(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (Adapter, error) {
		return &recordingAdapter{}, nil
	})
	assert.Contains(t, Types(), "fake-test")
	assert.Panics(t, func() { Register("fake-test", nil) })

	a, err := Open(context.Background(), config.BackendConfig{Name: "x", Type: "fake-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", a.Name())

	_, err = Open(context.Background(), config.BackendConfig{Name: "y", Type: "cassandra"}, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnknownBackend, apperrors.GetCode(err))
}

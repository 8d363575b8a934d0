// Package adapter defines the contract every benchmarked storage backend
// implements, the batching loop shared by all of them, and the registry that
// opens a backend from configuration.
package adapter

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/internal/stream"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

// Adapter is a storage backend under test. Implementations must be safe for
// concurrent PointQuery and IsVisible calls; writes are issued from a single
// goroutine.
type Adapter interface {
	// Name identifies the backend in labels and reports.
	Name() string

	// Setup creates the schema or indexes the backend needs. Idempotent.
	Setup(ctx context.Context) error

	// WriteBatch persists one batch of records of a single entity. The slice
	// is reused by the caller and must not be retained.
	WriteBatch(ctx context.Context, entity types.Entity, batch []types.Record) error

	// Write persists a single record as a realtime user action would.
	Write(ctx context.Context, rec types.Record) error

	// PointQuery runs one canonical read.
	PointQuery(ctx context.Context, q types.Query) (types.QueryResult, error)

	// IsVisible reports whether the write described by p can be read back.
	// It never blocks waiting for the write.
	IsVisible(ctx context.Context, p types.Predicate) (bool, error)

	Close() error
}

// BatchFunc observes every flushed batch. rows is the running total.
type BatchFunc func(batch int, rows int64)

// BulkInsert streams src into a in fixed-size batches and flushes the
// trailing partial batch at end of stream. It returns the rows written before
// the first failure. Calling it again with a disjoint stream appends.
func BulkInsert(ctx context.Context, a Adapter, entity types.Entity, src stream.Source, batchSize int, onBatch BatchFunc) (int64, error) {
	if batchSize <= 0 {
		return 0, apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("batch size must be positive, got %d", batchSize))
	}

	op := "write batch " + string(entity)
	batch := make([]types.Record, 0, batchSize)
	var rows int64
	batches := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := a.WriteBatch(ctx, entity, batch); err != nil {
			return apperrors.Wrap(apperrors.ErrCategoryIngest, apperrors.CodeBatchFailed,
				fmt.Sprintf("batch %d after %d rows", batches+1, rows), err).At(a.Name(), op)
		}
		rows += int64(len(batch))
		batches++
		if onBatch != nil {
			onBatch(batches, rows)
		}
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, apperrors.NewBackendError(apperrors.ErrCategoryIngest, apperrors.CodeDecodeFailed, a.Name(), "read "+string(entity), err)
		}
		if rec.Entity() != entity {
			return rows, apperrors.NewBackendError(apperrors.ErrCategoryIngest, apperrors.CodeDecodeFailed, a.Name(), op,
				fmt.Errorf("%w: %s record in %s stream", types.ErrUnsupportedRecord, rec.Entity(), entity))
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return rows, err
			}
			if err := ctx.Err(); err != nil {
				return rows, err
			}
		}
	}
	if err := flush(); err != nil {
		return rows, err
	}
	return rows, nil
}

// Factory opens a backend described by cfg.
type Factory func(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend type available to Open. Backend packages call it
// from init; registering a type twice panics.
func Register(typ string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("adapter: Register factory is nil")
	}
	if _, dup := registry[typ]; dup {
		panic("adapter: Register called twice for " + typ)
	}
	registry[typ] = f
}

// Types lists the registered backend types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Open connects to the backend described by cfg. The returned adapter has
// not been Setup.
func Open(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, apperrors.NewValidationError(apperrors.CodeUnknownBackend,
			fmt.Sprintf("unknown backend type %q (registered: %v)", cfg.Type, Types()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return f(ctx, cfg, logger.With(zap.String("backend", cfg.Name)))
}

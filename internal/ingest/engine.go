// Package ingest bulk-loads generated dataset files into a backend and times
// each (backend, entity) load.
package ingest

import (
	"context"
	"time"

	"github.com/arkilian/ugcbench/internal/adapter"
	"github.com/arkilian/ugcbench/internal/stream"
	"github.com/arkilian/ugcbench/internal/workload"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

// DefaultProgressEvery is how many batches pass between progress log lines.
const DefaultProgressEvery = 100

// Result is the throughput of one (backend, entity) load.
type Result struct {
	Label      string   `json:"label"`
	Backend    string   `json:"-"`
	Entity     string   `json:"-"`
	Rows       int64    `json:"rows"`
	Seconds    float64  `json:"seconds"`
	RowsPerSec *float64 `json:"rows_per_sec"`
}

// Label names a (backend, entity) pair.
func Label(backend string, e types.Entity) string {
	return backend + "_" + string(e)
}

func newResult(backend string, e types.Entity, rows int64, elapsed time.Duration) Result {
	r := Result{
		Label:   Label(backend, e),
		Backend: backend,
		Entity:  string(e),
		Rows:    rows,
		Seconds: elapsed.Seconds(),
	}
	if r.Seconds > 0 {
		rps := float64(rows) / r.Seconds
		r.RowsPerSec = &rps
	}
	return r
}

// Engine loads dataset files one entity at a time.
type Engine struct {
	dir           string
	manifest      *workload.Manifest
	progressEvery int
	now           func() time.Time
	logger        *zap.Logger
}

// NewEngine creates an engine over a generated dataset directory.
func NewEngine(dir string, m *workload.Manifest, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		dir:           dir,
		manifest:      m,
		progressEvery: DefaultProgressEvery,
		now:           time.Now,
		logger:        logger,
	}
}

// Entity streams one entity file into a. The clock runs from the first read
// until the trailing batch is flushed.
func (e *Engine) Entity(ctx context.Context, a adapter.Adapter, entity types.Entity, batchSize int) (Result, error) {
	r, err := workload.OpenDataset(e.dir, e.manifest, entity)
	if err != nil {
		return Result{}, err
	}
	defer r.Close()
	return e.Load(ctx, a, entity, r, batchSize)
}

// Load times BulkInsert of src into a.
func (e *Engine) Load(ctx context.Context, a adapter.Adapter, entity types.Entity, src stream.Source, batchSize int) (Result, error) {
	logger := e.logger.With(zap.String("backend", a.Name()), zap.String("entity", string(entity)))
	logger.Info("ingest started", zap.Int("batch_size", batchSize))

	progress := func(batch int, rows int64) {
		if e.progressEvery > 0 && batch%e.progressEvery == 0 {
			logger.Info("ingest progress", zap.Int("batches", batch), zap.Int64("rows", rows))
		}
	}

	start := e.now()
	rows, err := adapter.BulkInsert(ctx, a, entity, src, batchSize, progress)
	elapsed := e.now().Sub(start)
	if err != nil {
		logger.Error("ingest failed", zap.Int64("rows", rows), zap.Error(err))
		return newResult(a.Name(), entity, rows, elapsed), err
	}

	res := newResult(a.Name(), entity, rows, elapsed)
	fields := []zap.Field{zap.Int64("rows", rows), zap.Duration("elapsed", elapsed)}
	if res.RowsPerSec != nil {
		fields = append(fields, zap.Float64("rows_per_sec", *res.RowsPerSec))
	}
	logger.Info("ingest finished", fields...)
	return res, nil
}

// All loads every entity in order and stops at the first failure. Results of
// completed entities are returned alongside the error.
func (e *Engine) All(ctx context.Context, a adapter.Adapter, batchSize int) ([]Result, error) {
	results := make([]Result, 0, len(types.Entities))
	for _, entity := range types.Entities {
		res, err := e.Entity(ctx, a, entity, batchSize)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

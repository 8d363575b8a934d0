// Package driver issues randomized point queries against a backend from a
// fixed number of concurrent workers for a fixed duration and collects the
// per-query latencies.
package driver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/arkilian/ugcbench/internal/adapter"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// queryWeights is the relative frequency of each query kind.
var queryWeights = [...]float64{
	types.QueryUserLikes:      1,
	types.QueryMovieReactions: 1,
	types.QueryUserBookmarks:  1,
	types.QueryMovieAvg:       1,
}

// Config bounds one read phase.
type Config struct {
	Concurrency int
	Duration    time.Duration
	Users       int64
	Movies      int64
	Seed        int64

	// Kinds restricts the mix to the listed query kinds; empty runs all.
	Kinds []types.QueryKind
}

// mix returns the weights of the enabled kinds and their sum.
func (c Config) mix() (weights [len(queryWeights)]float64, total float64) {
	if len(c.Kinds) == 0 {
		weights = queryWeights
	}
	for _, k := range c.Kinds {
		weights[k] = queryWeights[k]
	}
	for _, w := range weights {
		total += w
	}
	return weights, total
}

// Result holds latencies in milliseconds keyed by query kind.
type Result struct {
	Samples map[types.QueryKind][]float64
	Queries int64
	Elapsed time.Duration
}

type worker struct {
	r       *rand.Rand
	weights [len(queryWeights)]float64
	total   float64
	samples [len(queryWeights)][]float64
}

func (w *worker) pick() types.QueryKind {
	x := w.r.Float64() * w.total
	last := 0
	for k, weight := range w.weights {
		if weight == 0 {
			continue
		}
		if x < weight {
			return types.QueryKind(k)
		}
		x -= weight
		last = k
	}
	return types.QueryKind(last)
}

// Run drives a for cfg.Duration. The first query error stops every worker and
// is returned; samples gathered up to that point are discarded.
func Run(ctx context.Context, a adapter.Adapter, cfg Config, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 || cfg.Duration <= 0 || cfg.Users <= 0 || cfg.Movies <= 0 {
		return Result{}, apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("driver: invalid config %+v", cfg))
	}
	for _, k := range cfg.Kinds {
		if k < 0 || int(k) >= len(queryWeights) {
			return Result{}, apperrors.NewValidationError(apperrors.CodeInvalidConfig,
				fmt.Sprintf("driver: query kind %d out of range", k))
		}
	}

	weights, total := cfg.mix()
	workers := make([]*worker, cfg.Concurrency)
	for i := range workers {
		workers[i] = &worker{
			r:       rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(i)+1)),
			weights: weights,
			total:   total,
		}
	}

	logger.Info("read phase started",
		zap.String("backend", a.Name()),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("kinds", len(cfg.Kinds)),
		zap.Duration("duration", cfg.Duration))

	start := time.Now()
	deadline := start.Add(cfg.Duration)
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			for time.Now().Before(deadline) {
				if err := gctx.Err(); err != nil {
					return err
				}
				q := types.Query{
					Kind:    w.pick(),
					UserID:  w.r.Int64N(cfg.Users) + 1,
					MovieID: w.r.Int64N(cfg.Movies) + 1,
				}
				t0 := time.Now()
				if _, err := a.PointQuery(gctx, q); err != nil {
					return apperrors.NewBackendError(apperrors.ErrCategoryQuery, apperrors.CodeQueryFailed, a.Name(), q.Kind.String(), err)
				}
				ms := float64(time.Since(t0)) / float64(time.Millisecond)
				w.samples[q.Kind] = append(w.samples[q.Kind], ms)
				runtime.Gosched()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{
		Samples: make(map[types.QueryKind][]float64, len(queryWeights)),
		Elapsed: time.Since(start),
	}
	for _, w := range workers {
		for k, s := range w.samples {
			kind := types.QueryKind(k)
			res.Samples[kind] = append(res.Samples[kind], s...)
			res.Queries += int64(len(s))
		}
	}
	logger.Info("read phase finished",
		zap.String("backend", a.Name()),
		zap.Int64("queries", res.Queries),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// Package realtime replays single user actions against a backend one write
// at a time, the way a live ingest API would, and times each write.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/arkilian/ugcbench/internal/adapter"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

// EventSource yields realtime events.
type EventSource interface {
	Next() types.Event
}

// Result holds write latencies in milliseconds keyed by event kind.
type Result struct {
	LatenciesMs map[types.EventKind][]float64
	Events      int
	Elapsed     time.Duration
}

// Replay writes n events from src sequentially. The first failed write
// aborts the replay.
func Replay(ctx context.Context, a adapter.Adapter, src EventSource, n int, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := Result{LatenciesMs: make(map[types.EventKind][]float64, len(types.EventKinds))}
	start := time.Now()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ev := src.Next()
		t0 := time.Now()
		if err := a.Write(ctx, ev.Record); err != nil {
			return res, apperrors.Wrap(apperrors.ErrCategoryIngest, apperrors.CodeWriteFailed,
				fmt.Sprintf("event %d", ev.ID), err).At(a.Name(), "realtime "+ev.Kind.String())
		}
		res.LatenciesMs[ev.Kind] = append(res.LatenciesMs[ev.Kind], float64(time.Since(t0))/float64(time.Millisecond))
		res.Events++
	}

	res.Elapsed = time.Since(start)
	logger.Info("realtime replay finished",
		zap.String("backend", a.Name()),
		zap.Int("events", res.Events),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// Package probe measures write visibility lag: how long after a write
// returns until a read observes it.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/arkilian/ugcbench/internal/adapter"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

// probeRating is the rating written by every probe like.
const probeRating = 8

// Outcome is the result of one probe. A timed out probe has no latency.
type Outcome struct {
	Latency  time.Duration
	TimedOut bool
}

// Config controls a probe series.
type Config struct {
	Runs         int
	UserBase     int64
	MovieID      int64
	Timeout      time.Duration
	PollInterval time.Duration
}

// Result aggregates a probe series. LatenciesMs holds only probes that saw
// their write.
type Result struct {
	LatenciesMs []float64
	Samples     int
	Timeouts    int
}

// Once writes rec, then polls IsVisible(pred) every interval until it holds
// or timeout passes. The clock starts when the write returns.
func Once(ctx context.Context, a adapter.Adapter, rec types.Record, pred types.Predicate, timeout, interval time.Duration) (Outcome, error) {
	if err := a.Write(ctx, rec); err != nil {
		return Outcome{}, apperrors.NewBackendError(apperrors.ErrCategoryProbe, apperrors.CodeProbeWriteFailed, a.Name(), "probe write", err)
	}
	start := time.Now()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := a.IsVisible(ctx, pred)
		if err != nil {
			return Outcome{}, apperrors.NewBackendError(apperrors.ErrCategoryProbe, apperrors.CodeVisibilityFailed, a.Name(), "is visible", err)
		}
		elapsed := time.Since(start)
		if ok {
			return Outcome{Latency: elapsed}, nil
		}
		if elapsed >= timeout {
			return Outcome{TimedOut: true}, nil
		}
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run performs cfg.Runs timed writes, each a like of MovieID by a user
// counting up from UserBase. Users whose like is already visible are
// skipped, so a rerun against a store holding earlier runs' likes still
// measures fresh writes.
func Run(ctx context.Context, a adapter.Adapter, cfg Config, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Runs < 0 || cfg.Timeout <= 0 || cfg.PollInterval <= 0 {
		return Result{}, apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("probe: invalid config %+v", cfg))
	}

	res := Result{LatenciesMs: make([]float64, 0, cfg.Runs)}
	userID := cfg.UserBase
	for i := 0; i < cfg.Runs; i++ {
		pred, err := freshPair(ctx, a, &userID, cfg.MovieID)
		if err != nil {
			return res, err
		}
		rec := types.LikeEvent{
			UserID:    pred.UserID,
			MovieID:   pred.MovieID,
			Rating:    probeRating,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		out, err := Once(ctx, a, rec, pred, cfg.Timeout, cfg.PollInterval)
		if err != nil {
			return res, err
		}
		res.Samples++
		if out.TimedOut {
			res.Timeouts++
			logger.Debug("probe timed out", zap.Int64("user_id", pred.UserID), zap.Duration("timeout", cfg.Timeout))
			continue
		}
		res.LatenciesMs = append(res.LatenciesMs, float64(out.Latency)/float64(time.Millisecond))
	}

	logger.Info("visibility probe finished",
		zap.String("backend", a.Name()),
		zap.Int("samples", res.Samples),
		zap.Int("timeouts", res.Timeouts),
		zap.Int64("skipped_users", userID-cfg.UserBase-int64(cfg.Runs)))
	return res, nil
}

// freshPair advances *userID past users whose like of movieID is already
// visible and returns the predicate for the first free one.
func freshPair(ctx context.Context, a adapter.Adapter, userID *int64, movieID int64) (types.Predicate, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Predicate{}, err
		}
		pred := types.LikeExists(*userID, movieID)
		*userID++
		seen, err := a.IsVisible(ctx, pred)
		if err != nil {
			return types.Predicate{}, apperrors.NewBackendError(apperrors.ErrCategoryProbe, apperrors.CodeVisibilityFailed, a.Name(), "pre-check", err)
		}
		if !seen {
			return pred, nil
		}
	}
}

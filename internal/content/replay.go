package content

import (
	"context"
	"errors"
	"strconv"
	"time"

	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

// Operation names used as latency keys.
const (
	OpLikeCreate     = "like_create"
	OpLikeDelete     = "like_delete"
	OpLikeCount      = "like_count"
	OpBookmarkCreate = "bookmark_create"
	OpBookmarkDelete = "bookmark_delete"
	OpBookmarkList   = "bookmark_list"
	OpReviewCreate   = "review_create"
	OpReviewList     = "review_list"
	OpReviewUpdate   = "review_update"
	OpReviewDelete   = "review_delete"
)

// Ops lists every operation in report order.
var Ops = []string{
	OpLikeCreate, OpLikeDelete, OpLikeCount,
	OpBookmarkCreate, OpBookmarkDelete, OpBookmarkList,
	OpReviewCreate, OpReviewList, OpReviewUpdate, OpReviewDelete,
}

// EntityMovie is the entity type every replayed call targets.
const EntityMovie = "movie"

// EventSource yields workload events.
type EventSource interface {
	Next() types.Event
}

// ReplayResult holds call latencies in milliseconds keyed by operation.
type ReplayResult struct {
	LatenciesMs map[string][]float64
	Events      int
	Elapsed     time.Duration
}

// replayer turns workload events into the calls a client of the public API
// would make. A like or bookmark of a pair that already exists toggles it
// off. A dislike posts a review. A review reaction edits (like) or removes
// (dislike) one of the reviews posted earlier in the replay.
type replayer struct {
	store   Store
	res     *ReplayResult
	reviews []string
}

// Replay sends n events from src to the store one call at a time. A
// DUPLICATE on create turns into a delete; any other failed call aborts the
// replay.
func Replay(ctx context.Context, store Store, src EventSource, n int, logger *zap.Logger) (ReplayResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := ReplayResult{LatenciesMs: make(map[string][]float64, len(Ops))}
	rp := &replayer{store: store, res: &res}
	start := time.Now()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ev := src.Next()
		if err := rp.apply(ctx, ev); err != nil {
			return res, err
		}
		res.Events++
	}

	res.Elapsed = time.Since(start)
	logger.Info("content replay finished",
		zap.Int("events", res.Events),
		zap.Int("open_reviews", len(rp.reviews)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// timed runs call and records its latency under op.
func (rp *replayer) timed(op string, call func() error) error {
	t0 := time.Now()
	err := call()
	rp.res.LatenciesMs[op] = append(rp.res.LatenciesMs[op], float64(time.Since(t0))/float64(time.Millisecond))
	return err
}

func (rp *replayer) apply(ctx context.Context, ev types.Event) error {
	switch rec := ev.Record.(type) {
	case types.LikeEvent:
		if ev.Kind == types.EventMovieDislike {
			return rp.review(ctx, rec)
		}
		return rp.like(ctx, rec)
	case types.Bookmark:
		return rp.bookmark(ctx, rec)
	case types.ReviewReaction:
		return rp.reaction(ctx, rec)
	default:
		return apperrors.NewContentError(apperrors.CodeUnexpected, "no content call for "+ev.Kind.String())
	}
}

func (rp *replayer) like(ctx context.Context, rec types.LikeEvent) error {
	likes := rp.store.Likes()
	userID, entityID := formatID(rec.UserID), formatID(rec.MovieID)
	err := rp.timed(OpLikeCreate, func() error {
		_, err := likes.Create(ctx, Like{UserID: userID, EntityType: EntityMovie, EntityID: entityID, CreatedAt: rec.CreatedAt})
		return err
	})
	if isDuplicate(err) {
		err = rp.timed(OpLikeDelete, func() error { return likes.Delete(ctx, userID, entityID) })
	}
	if err != nil {
		return err
	}
	return rp.timed(OpLikeCount, func() error {
		_, err := likes.Count(ctx, entityID)
		return err
	})
}

func (rp *replayer) bookmark(ctx context.Context, rec types.Bookmark) error {
	bookmarks := rp.store.Bookmarks()
	userID, entityID := formatID(rec.UserID), formatID(rec.MovieID)
	err := rp.timed(OpBookmarkCreate, func() error {
		_, err := bookmarks.Create(ctx, Bookmark{UserID: userID, EntityType: EntityMovie, EntityID: entityID, CreatedAt: rec.CreatedAt})
		return err
	})
	if isDuplicate(err) {
		err = rp.timed(OpBookmarkDelete, func() error { return bookmarks.Delete(ctx, userID, entityID) })
	}
	if err != nil {
		return err
	}
	return rp.timed(OpBookmarkList, func() error {
		_, err := bookmarks.List(ctx, userID)
		return err
	})
}

func (rp *replayer) review(ctx context.Context, rec types.LikeEvent) error {
	reviews := rp.store.Reviews()
	entityID := formatID(rec.MovieID)
	err := rp.timed(OpReviewCreate, func() error {
		r, err := reviews.Create(ctx, Review{
			UserID:     formatID(rec.UserID),
			EntityType: EntityMovie,
			EntityID:   entityID,
			Rating:     max(rec.Rating, MinRating),
			CreatedAt:  rec.CreatedAt,
		})
		if err == nil {
			rp.reviews = append(rp.reviews, r.ID)
		}
		return err
	})
	if err != nil {
		return err
	}
	return rp.timed(OpReviewList, func() error {
		_, err := reviews.List(ctx, entityID)
		return err
	})
}

func (rp *replayer) reaction(ctx context.Context, rec types.ReviewReaction) error {
	if len(rp.reviews) == 0 {
		return nil
	}
	reviews := rp.store.Reviews()
	i := int(rec.ReviewID % int64(len(rp.reviews)))
	reviewID := rp.reviews[i]

	if rec.IsLike == 1 {
		rating := MinRating + int(rec.UserID%int64(MaxRating))
		text := "edited by " + formatID(rec.UserID)
		return rp.timed(OpReviewUpdate, func() error {
			return reviews.Update(ctx, reviewID, ReviewPatch{Rating: &rating, Text: &text})
		})
	}
	rp.reviews = append(rp.reviews[:i], rp.reviews[i+1:]...)
	return rp.timed(OpReviewDelete, func() error { return reviews.Delete(ctx, reviewID) })
}

func isDuplicate(err error) bool {
	var be *apperrors.BenchError
	return errors.As(err, &be) && be.Category == apperrors.ErrCategoryContent && be.Code == apperrors.CodeDuplicate
}

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}

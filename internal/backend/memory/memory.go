// Package memory is an in-process document store that mirrors the document
// backend's data model: one aggregate document per movie with nested likes
// and running counters, one document per user holding bookmarks. An optional
// lag delays visibility of new likes and bookmarks.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arkilian/ugcbench/internal/adapter"
	"github.com/arkilian/ugcbench/internal/config"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

func init() {
	adapter.Register(config.BackendMemory, func(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (adapter.Adapter, error) {
		return New(cfg.Name, cfg.Memory.VisibilityLag, logger), nil
	})
}

type likeEntry struct {
	UserID    int64
	Rating    int
	CreatedAt time.Time
}

type movieDoc struct {
	likes         []likeEntry
	likesCount    int64
	dislikesCount int64
	ratingSum     int64
	ratingCount   int64
}

type reviewDoc struct {
	review    types.Review
	likes     int64
	dislikes  int64
	hasReview bool
}

type userBookmarks struct {
	movies map[int64]time.Time
}

// Store is the in-memory adapter.
type Store struct {
	name   string
	lag    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu        sync.RWMutex
	movies    map[int64]*movieDoc
	userLikes map[int64]map[int64]struct{}
	reviews   map[int64]*reviewDoc
	bookmarks map[int64]*userBookmarks

	// visibleAt holds, per (user, movie) pair, when the first write of that
	// pair becomes observable. Separate maps for likes and bookmarks.
	likeVisibleAt     map[uint64]time.Time
	bookmarkVisibleAt map[uint64]time.Time
}

// New creates an empty store. lag of zero makes writes visible immediately.
func New(name string, lag time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		name:              name,
		lag:               lag,
		now:               time.Now,
		logger:            logger,
		movies:            make(map[int64]*movieDoc),
		userLikes:         make(map[int64]map[int64]struct{}),
		reviews:           make(map[int64]*reviewDoc),
		bookmarks:         make(map[int64]*userBookmarks),
		likeVisibleAt:     make(map[uint64]time.Time),
		bookmarkVisibleAt: make(map[uint64]time.Time),
	}
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return s.name }

// Setup is a no-op.
func (s *Store) Setup(ctx context.Context) error { return nil }

// Close is a no-op; contents stay readable.
func (s *Store) Close() error { return nil }

// WriteBatch applies the batch atomically with respect to readers.
func (s *Store) WriteBatch(ctx context.Context, entity types.Entity, batch []types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	visibleAt := s.now().Add(s.lag)
	for _, rec := range batch {
		if rec.Entity() != entity {
			return fmt.Errorf("memory: %w: %T in %s batch", types.ErrUnsupportedRecord, rec, entity)
		}
		if err := s.apply(rec, visibleAt); err != nil {
			return err
		}
	}
	return nil
}

// Write applies one record.
func (s *Store) Write(ctx context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(rec, s.now().Add(s.lag))
}

func (s *Store) apply(rec types.Record, visibleAt time.Time) error {
	switch r := rec.(type) {
	case types.LikeEvent:
		doc := s.movies[r.MovieID]
		if doc == nil {
			doc = &movieDoc{}
			s.movies[r.MovieID] = doc
		}
		doc.likes = append(doc.likes, likeEntry{UserID: r.UserID, Rating: r.Rating, CreatedAt: r.CreatedAt})
		if r.IsLike() {
			doc.likesCount++
		}
		if r.IsDislike() {
			doc.dislikesCount++
		}
		doc.ratingSum += int64(r.Rating)
		doc.ratingCount++

		movies := s.userLikes[r.UserID]
		if movies == nil {
			movies = make(map[int64]struct{})
			s.userLikes[r.UserID] = movies
		}
		movies[r.MovieID] = struct{}{}

		key := types.PairKey(r.UserID, r.MovieID)
		if _, ok := s.likeVisibleAt[key]; !ok {
			s.likeVisibleAt[key] = visibleAt
		}

	case types.Review:
		doc := s.reviews[r.ReviewID]
		if doc == nil {
			doc = &reviewDoc{}
			s.reviews[r.ReviewID] = doc
		}
		// insert-only: a review already present keeps its content
		if !doc.hasReview {
			doc.review = r
			doc.hasReview = true
		}

	case types.ReviewReaction:
		doc := s.reviews[r.ReviewID]
		if doc == nil {
			doc = &reviewDoc{}
			s.reviews[r.ReviewID] = doc
		}
		if r.IsLike == 1 {
			doc.likes++
		} else {
			doc.dislikes++
		}

	case types.Bookmark:
		ub := s.bookmarks[r.UserID]
		if ub == nil {
			ub = &userBookmarks{movies: make(map[int64]time.Time)}
			s.bookmarks[r.UserID] = ub
		}
		if _, ok := ub.movies[r.MovieID]; !ok {
			ub.movies[r.MovieID] = r.CreatedAt
		}
		key := r.Key()
		if _, ok := s.bookmarkVisibleAt[key]; !ok {
			s.bookmarkVisibleAt[key] = visibleAt
		}

	default:
		return fmt.Errorf("memory: %w: %T", types.ErrUnsupportedRecord, rec)
	}
	return nil
}

// PointQuery implements adapter.Adapter.
func (s *Store) PointQuery(ctx context.Context, q types.Query) (types.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := types.QueryResult{Kind: q.Kind}
	switch q.Kind {
	case types.QueryUserLikes:
		res.MovieIDs = sortedKeys(s.userLikes[q.UserID])
		res.Rows = len(res.MovieIDs)

	case types.QueryMovieReactions:
		if doc := s.movies[q.MovieID]; doc != nil {
			res.Likes, res.Dislikes = doc.likesCount, doc.dislikesCount
			res.Rows = 1
		}

	case types.QueryUserBookmarks:
		if ub := s.bookmarks[q.UserID]; ub != nil {
			ids := make(map[int64]struct{}, len(ub.movies))
			for id := range ub.movies {
				ids[id] = struct{}{}
			}
			res.MovieIDs = sortedKeys(ids)
			res.Rows = 1
		}

	case types.QueryMovieAvg:
		if doc := s.movies[q.MovieID]; doc != nil && doc.ratingCount > 0 {
			avg := float64(doc.ratingSum) / float64(doc.ratingCount)
			res.Average = &avg
			res.Rows = 1
		}

	default:
		return res, fmt.Errorf("memory: %w: %s", types.ErrUnknownQueryKind, q.Kind)
	}
	return res, nil
}

// IsVisible implements adapter.Adapter.
func (s *Store) IsVisible(ctx context.Context, p types.Predicate) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var visibleAt time.Time
	var ok bool
	key := types.PairKey(p.UserID, p.MovieID)
	switch p.Entity {
	case types.EntityLikes:
		visibleAt, ok = s.likeVisibleAt[key]
	case types.EntityBookmarks:
		visibleAt, ok = s.bookmarkVisibleAt[key]
	default:
		return false, fmt.Errorf("memory: visibility: %w: %q", types.ErrUnknownEntity, p.Entity)
	}
	return ok && !s.now().Before(visibleAt), nil
}

func sortedKeys(m map[int64]struct{}) []int64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

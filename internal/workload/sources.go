package workload

import (
	"io"
	"math/rand/v2"

	"github.com/arkilian/ugcbench/internal/bloom"
	"github.com/arkilian/ugcbench/internal/config"
	"github.com/arkilian/ugcbench/internal/stream"
	"github.com/arkilian/ugcbench/pkg/types"
)

// Params are the knobs that fully determine a dataset. Two generators with
// equal Params emit identical record sequences.
type Params struct {
	Seed         int64   `json:"seed"`
	Users        int64   `json:"users"`
	Movies       int64   `json:"movies"`
	Likes        int64   `json:"likes"`
	Reviews      int64   `json:"reviews"`
	MaxReactions int     `json:"max_reactions"`
	Bookmarks    int64   `json:"bookmarks"`
	Skew         float64 `json:"skew"`
}

// ParamsFromConfig extracts generator parameters from workload configuration.
func ParamsFromConfig(c config.WorkloadConfig) Params {
	return Params{
		Seed:         c.Seed,
		Users:        c.Users,
		Movies:       c.Movies,
		Likes:        c.Likes,
		Reviews:      c.Reviews,
		MaxReactions: c.MaxReactions,
		Bookmarks:    c.Bookmarks,
		Skew:         c.Skew,
	}
}

// Source returns a fresh lazy stream of the given entity. Each call restarts
// the entity's random stream from the seed.
func (p Params) Source(e types.Entity) (stream.Source, error) {
	switch e {
	case types.EntityLikes:
		return &likeSource{p: p, r: newRand(p.Seed, saltLikes)}, nil
	case types.EntityReviews:
		return &reviewSource{p: p, r: newRand(p.Seed, saltReviews)}, nil
	case types.EntityReviewReactions:
		return &reactionSource{p: p, r: newRand(p.Seed, saltReactions)}, nil
	case types.EntityBookmarks:
		return &bookmarkSource{p: p, r: newRand(p.Seed, saltBookmarks), seen: bloom.NewWithEstimates(int(p.Bookmarks), bookmarkFPR)}, nil
	default:
		return nil, types.ErrUnknownEntity
	}
}

type likeSource struct {
	p       Params
	r       *rand.Rand
	emitted int64
}

func (s *likeSource) Next() (types.Record, error) {
	if s.emitted >= s.p.Likes {
		return nil, io.EOF
	}
	s.emitted++
	return types.LikeEvent{
		UserID:    uniformID(s.r, s.p.Users),
		MovieID:   paretoID(s.r, s.p.Movies, s.p.Skew),
		Rating:    weightedRating(s.r),
		CreatedAt: randomDate(s.r),
	}, nil
}

// reviewSource emits reviews with dense ids 1..Reviews.
type reviewSource struct {
	p    Params
	r    *rand.Rand
	next int64
}

func (s *reviewSource) Next() (types.Record, error) {
	if s.next >= s.p.Reviews {
		return nil, io.EOF
	}
	s.next++
	return types.Review{
		ReviewID:        s.next,
		MovieID:         paretoID(s.r, s.p.Movies, s.p.Skew),
		AuthorID:        uniformID(s.r, s.p.Users),
		Text:            reviewText(s.r),
		UserMovieRating: weightedRating(s.r),
		PublishedAt:     randomDate(s.r),
	}, nil
}

// reactionSource walks reviews in id order and emits a uniform
// [0, MaxReactions] number of reactions for each.
type reactionSource struct {
	p       Params
	r       *rand.Rand
	review  int64
	pending int
}

func (s *reactionSource) Next() (types.Record, error) {
	for s.pending == 0 {
		if s.review >= s.p.Reviews {
			return nil, io.EOF
		}
		s.review++
		s.pending = s.r.IntN(s.p.MaxReactions + 1)
	}
	s.pending--
	return types.ReviewReaction{
		ReviewID:  s.review,
		UserID:    uniformID(s.r, s.p.Users),
		IsLike:    s.r.IntN(2),
		CreatedAt: randomDate(s.r),
	}, nil
}

// bookmarkFPR is the rate at which a fresh pair is mistaken for a repeat and
// dropped.
const bookmarkFPR = 0.001

// bookmarkSource makes Bookmarks draws and drops repeated (user, movie)
// pairs, so the emitted count is an upper bound. Pairs are tracked in a
// Bloom filter: a repeat is never emitted, and a small fraction of fresh
// pairs is dropped too.
type bookmarkSource struct {
	p     Params
	r     *rand.Rand
	draws int64
	seen  *bloom.Filter
}

func (s *bookmarkSource) Next() (types.Record, error) {
	for s.draws < s.p.Bookmarks {
		s.draws++
		userID := uniformID(s.r, s.p.Users)
		movieID := paretoID(s.r, s.p.Movies, s.p.Skew)
		createdAt := randomDate(s.r)

		if s.seen.TestAndAdd(types.PairKey(userID, movieID)) {
			continue
		}
		return types.Bookmark{UserID: userID, MovieID: movieID, CreatedAt: createdAt}, nil
	}
	return nil, io.EOF
}

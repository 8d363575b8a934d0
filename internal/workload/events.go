package workload

import (
	"math/rand/v2"
	"time"

	"github.com/arkilian/ugcbench/pkg/types"
)

// eventWeights is the realtime mix by event kind.
var eventWeights = [...]float64{
	types.EventMovieLike:      0.45,
	types.EventMovieDislike:   0.15,
	types.EventBookmark:       0.25,
	types.EventReviewReaction: 0.15,
}

// EventStream produces an unbounded sequence of single user actions for the
// realtime replay. Ids are uniform over the configured cardinalities.
type EventStream struct {
	p    Params
	r    *rand.Rand
	next int64
	now  func() time.Time
}

// NewEventStream seeds a realtime event stream from p.
func NewEventStream(p Params) *EventStream {
	return &EventStream{
		p:   p,
		r:   newRand(p.Seed, saltEvents),
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *EventStream) kind() types.EventKind {
	x := s.r.Float64()
	for k, w := range eventWeights {
		if x < w {
			return types.EventKind(k)
		}
		x -= w
	}
	return types.EventReviewReaction
}

// Next draws the next event.
func (s *EventStream) Next() types.Event {
	s.next++
	kind := s.kind()
	userID := uniformID(s.r, s.p.Users)
	movieID := uniformID(s.r, s.p.Movies)
	at := s.now()

	var rec types.Record
	switch kind {
	case types.EventMovieLike:
		rec = types.LikeEvent{UserID: userID, MovieID: movieID, Rating: types.LikeRating + s.r.IntN(types.MaxRating-types.LikeRating+1), CreatedAt: at}
	case types.EventMovieDislike:
		rec = types.LikeEvent{UserID: userID, MovieID: movieID, Rating: s.r.IntN(types.DislikeRating + 1), CreatedAt: at}
	case types.EventBookmark:
		rec = types.Bookmark{UserID: userID, MovieID: movieID, CreatedAt: at}
	default:
		reviews := s.p.Reviews
		if reviews < 1 {
			reviews = 1
		}
		rec = types.ReviewReaction{ReviewID: uniformID(s.r, reviews), UserID: userID, IsLike: s.r.IntN(2), CreatedAt: at}
	}
	return types.Event{ID: s.next, Kind: kind, Record: rec}
}

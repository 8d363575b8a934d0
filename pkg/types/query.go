package types

import "fmt"

// QueryKind is one of the canonical read shapes every backend serves.
type QueryKind int

const (
	QueryUserLikes QueryKind = iota
	QueryMovieReactions
	QueryUserBookmarks
	QueryMovieAvg
)

// QueryKinds lists every query kind in report order.
var QueryKinds = []QueryKind{QueryUserLikes, QueryMovieReactions, QueryUserBookmarks, QueryMovieAvg}

var queryKindNames = [...]string{
	QueryUserLikes:      "user_likes",
	QueryMovieReactions: "movie_reactions",
	QueryUserBookmarks:  "user_bookmarks",
	QueryMovieAvg:       "movie_avg",
}

func (k QueryKind) String() string {
	if k < 0 || int(k) >= len(queryKindNames) {
		return fmt.Sprintf("QueryKind(%d)", int(k))
	}
	return queryKindNames[k]
}

// ParseQueryKind converts a report name back into a QueryKind.
func ParseQueryKind(s string) (QueryKind, error) {
	for i, name := range queryKindNames {
		if name == s {
			return QueryKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownQueryKind, s)
}

// Query is a point lookup. Only the id relevant to Kind is read.
type Query struct {
	Kind    QueryKind
	UserID  int64
	MovieID int64
}

// QueryResult carries the semantic answer of a Query. Backends fill only the
// fields that belong to the query kind.
type QueryResult struct {
	Kind QueryKind

	// Rows is the number of rows or nested entries returned.
	Rows int

	// Likes and Dislikes are set by QueryMovieReactions.
	Likes    int64
	Dislikes int64

	// Average is set by QueryMovieAvg; nil when the movie has no ratings.
	Average *float64

	// MovieIDs is set by QueryUserLikes and QueryUserBookmarks.
	MovieIDs []int64
}

// Predicate describes a single write whose visibility is being checked.
type Predicate struct {
	Entity  Entity
	UserID  int64
	MovieID int64
}

// LikeExists is the predicate "a like by user for movie exists".
func LikeExists(userID, movieID int64) Predicate {
	return Predicate{Entity: EntityLikes, UserID: userID, MovieID: movieID}
}

// BookmarkExists is the predicate "user bookmarked movie".
func BookmarkExists(userID, movieID int64) Predicate {
	return Predicate{Entity: EntityBookmarks, UserID: userID, MovieID: movieID}
}

// EventKind tags a realtime event.
type EventKind int

const (
	EventMovieLike EventKind = iota
	EventMovieDislike
	EventBookmark
	EventReviewReaction
)

// EventKinds lists every event kind.
var EventKinds = []EventKind{EventMovieLike, EventMovieDislike, EventBookmark, EventReviewReaction}

var eventKindNames = [...]string{
	EventMovieLike:      "movie_like",
	EventMovieDislike:   "movie_dislike",
	EventBookmark:       "bookmark",
	EventReviewReaction: "review_reaction",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// Event is one realtime write. Record holds the concrete payload.
type Event struct {
	ID     int64
	Kind   EventKind
	Record Record
}

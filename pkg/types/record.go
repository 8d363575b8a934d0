// Package types provides the record model shared by the generator, the
// backends and the benchmark phases.
package types

import (
	"fmt"
	"time"
)

// Entity identifies one generated record stream.
type Entity string

const (
	EntityLikes           Entity = "likes"
	EntityReviews         Entity = "reviews"
	EntityReviewReactions Entity = "review_reactions"
	EntityBookmarks       Entity = "bookmarks"
)

// Entities lists every entity in generation and ingestion order.
var Entities = []Entity{EntityLikes, EntityReviews, EntityReviewReactions, EntityBookmarks}

// ParseEntity converts a name into an Entity.
func ParseEntity(s string) (Entity, error) {
	for _, e := range Entities {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// FileName returns the dataset file name for the entity.
func (e Entity) FileName() string {
	return string(e) + ".jsonl"
}

// Rating thresholds that classify a like event.
const (
	MinRating     = 0
	MaxRating     = 10
	LikeRating    = 7 // rating >= LikeRating counts as a like
	DislikeRating = 4 // rating <= DislikeRating counts as a dislike
)

// Record is a single immutable generated record.
type Record interface {
	Entity() Entity
}

// LikeEvent is a user's rating of a movie.
type LikeEvent struct {
	UserID    int64     `json:"user_id"`
	MovieID   int64     `json:"movie_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity implements Record.
func (LikeEvent) Entity() Entity { return EntityLikes }

// IsLike reports whether the rating counts as a like.
func (l LikeEvent) IsLike() bool { return l.Rating >= LikeRating }

// IsDislike reports whether the rating counts as a dislike.
func (l LikeEvent) IsDislike() bool { return l.Rating <= DislikeRating }

// Review is a written movie review. ReviewID is dense and starts at 1.
type Review struct {
	ReviewID        int64     `json:"review_id"`
	MovieID         int64     `json:"movie_id"`
	AuthorID        int64     `json:"author_id"`
	Text            string    `json:"text"`
	UserMovieRating int       `json:"user_movie_rating"`
	PublishedAt     time.Time `json:"published_at"`
}

// Entity implements Record.
func (Review) Entity() Entity { return EntityReviews }

// ReviewReaction is a like (1) or dislike (0) of a review.
type ReviewReaction struct {
	ReviewID  int64     `json:"review_id"`
	UserID    int64     `json:"user_id"`
	IsLike    int       `json:"is_like"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity implements Record.
func (ReviewReaction) Entity() Entity { return EntityReviewReactions }

// Bookmark marks a movie for later. At most one per (UserID, MovieID).
type Bookmark struct {
	UserID    int64     `json:"user_id"`
	MovieID   int64     `json:"movie_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity implements Record.
func (Bookmark) Entity() Entity { return EntityBookmarks }

// Key packs the (user, movie) pair into a single map key.
func (b Bookmark) Key() uint64 {
	return PairKey(b.UserID, b.MovieID)
}

// PairKey packs two ids, each below 2^32, into one uint64.
func PairKey(userID, movieID int64) uint64 {
	return uint64(userID)<<32 | uint64(uint32(movieID))
}

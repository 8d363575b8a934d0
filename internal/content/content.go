// Package content is the user-content store that sits beside the benchmark:
// bookmarks, likes and reviews keyed by (user_id, entity_id), with the
// uniqueness and not-found rules the public API relies on.
package content

import (
	"context"
	"fmt"
	"time"

	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"go.uber.org/zap"
)

// Rating bounds for reviews.
const (
	MinRating = 1
	MaxRating = 10
)

// Bookmark marks an entity saved by a user.
type Bookmark struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Like has the same shape as a bookmark.
type Like Bookmark

// Review is a rated, optionally texted review of an entity.
type Review struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Rating     int       `json:"rating"`
	Text       *string   `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReviewPatch holds the fields an update sets. Nil fields are left as is.
type ReviewPatch struct {
	Rating *int    `json:"rating,omitempty"`
	Text   *string `json:"text,omitempty"`
}

// Bookmarks is the bookmark collection. Create fails with DUPLICATE when the
// (user, entity) pair exists; Delete fails with NOT_FOUND when it does not.
type Bookmarks interface {
	Create(ctx context.Context, b Bookmark) (Bookmark, error)
	List(ctx context.Context, userID string) ([]Bookmark, error)
	Delete(ctx context.Context, userID, entityID string) error
}

// Likes is the like collection, with the same uniqueness rules as Bookmarks.
type Likes interface {
	Create(ctx context.Context, l Like) (Like, error)
	Count(ctx context.Context, entityID string) (int64, error)
	Delete(ctx context.Context, userID, entityID string) error
}

// Reviews is the review collection, addressed by an opaque id.
type Reviews interface {
	Create(ctx context.Context, r Review) (Review, error)
	List(ctx context.Context, entityID string) ([]Review, error)
	Update(ctx context.Context, id string, patch ReviewPatch) error
	Delete(ctx context.Context, id string) error
}

// Store bundles the three collections over one connection.
type Store interface {
	Bookmarks() Bookmarks
	Likes() Likes
	Reviews() Reviews

	// Bootstrap creates the tables or indexes that back the uniqueness
	// rules. It is idempotent.
	Bootstrap(ctx context.Context) error

	Close() error
}

// Open connects to the configured content store.
func Open(ctx context.Context, cfg config.ContentConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case config.BackendMongoDB:
		return OpenMongo(ctx, cfg.MongoURI, cfg.Database, logger)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("unsupported content store type: %q", cfg.Type))
	}
}

func validateKey(userID, entityID string) error {
	if userID == "" {
		return apperrors.NewValidationError(apperrors.CodeInvalidField, "user_id is required")
	}
	if entityID == "" {
		return apperrors.NewValidationError(apperrors.CodeInvalidField, "entity_id is required")
	}
	return nil
}

func validateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return apperrors.NewValidationError(apperrors.CodeInvalidField,
			fmt.Sprintf("rating must be between %d and %d, got %d", MinRating, MaxRating, rating))
	}
	return nil
}

func (r Review) validate() error {
	if err := validateKey(r.UserID, r.EntityID); err != nil {
		return err
	}
	return validateRating(r.Rating)
}

func (p ReviewPatch) validate() error {
	if p.Rating != nil {
		return validateRating(*p.Rating)
	}
	return nil
}

func duplicate(what, userID, entityID string, cause error) error {
	return apperrors.Wrap(apperrors.ErrCategoryContent, apperrors.CodeDuplicate,
		fmt.Sprintf("%s by %s on %s already exists", what, userID, entityID), cause)
}

func notFound(what string) error {
	return apperrors.NewContentError(apperrors.CodeNotFound, what+" not found")
}

func storeFailed(op string, cause error) error {
	return apperrors.Wrap(apperrors.ErrCategoryContent, apperrors.CodeStoreFailed, op, cause)
}

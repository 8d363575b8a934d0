package content

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "content.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Bootstrap(context.Background()))
	return s
}

func TestBookmarks_UniquePerUserEntity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	bm := s.Bookmarks()

	created, err := bm.Create(ctx, Bookmark{UserID: "u1", EntityType: "film", EntityID: "f1"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = bm.Create(ctx, Bookmark{UserID: "u1", EntityType: "film", EntityID: "f1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDuplicate, apperrors.GetCode(err))
	assert.Equal(t, apperrors.ErrCategoryContent, apperrors.GetCategory(err))

	_, err = bm.Create(ctx, Bookmark{UserID: "u1", EntityType: "film", EntityID: "f2"})
	require.NoError(t, err)
	_, err = bm.Create(ctx, Bookmark{UserID: "u2", EntityType: "film", EntityID: "f1"})
	require.NoError(t, err)

	list, err := bm.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{"f1", "f2"}, []string{list[0].EntityID, list[1].EntityID})

	empty, err := bm.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBookmarks_DeleteMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	bm := openTestStore(t).Bookmarks()

	_, err := bm.Create(ctx, Bookmark{UserID: "u1", EntityID: "f1"})
	require.NoError(t, err)
	require.NoError(t, bm.Delete(ctx, "u1", "f1"))

	err = bm.Delete(ctx, "u1", "f1")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestLikes_CountAndDelete(t *testing.T) {
	ctx := context.Background()
	likes := openTestStore(t).Likes()

	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := likes.Create(ctx, Like{UserID: u, EntityType: "film", EntityID: "f1"})
		require.NoError(t, err)
	}
	_, err := likes.Create(ctx, Like{UserID: "u1", EntityType: "film", EntityID: "f1"})
	assert.Equal(t, apperrors.CodeDuplicate, apperrors.GetCode(err))

	n, err := likes.Count(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, likes.Delete(ctx, "u2", "f1"))
	n, err = likes.Count(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(likes.Delete(ctx, "u2", "f1")))
}

func TestCreate_RejectsMissingKey(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Bookmarks().Create(ctx, Bookmark{EntityID: "f1"})
	assert.Equal(t, apperrors.CodeInvalidField, apperrors.GetCode(err))

	_, err = s.Likes().Create(ctx, Like{UserID: "u1"})
	assert.Equal(t, apperrors.CodeInvalidField, apperrors.GetCode(err))
}

func TestReviews_UpdateMergesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	reviews := s.Reviews()

	text := "solid"
	r, err := reviews.Create(ctx, Review{UserID: "u1", EntityType: "film", EntityID: "f1", Rating: 7, Text: &text})
	require.NoError(t, err)
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)

	clock = clock.Add(time.Hour)
	rating := 9
	require.NoError(t, reviews.Update(ctx, r.ID, ReviewPatch{Rating: &rating}))

	list, err := reviews.List(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, 9, got.Rating)
	require.NotNil(t, got.Text)
	assert.Equal(t, "solid", *got.Text)
	assert.True(t, got.CreatedAt.Equal(r.CreatedAt))
	assert.True(t, got.UpdatedAt.Equal(clock), "updated_at %s", got.UpdatedAt)
}

func TestReviews_Validation(t *testing.T) {
	ctx := context.Background()
	reviews := openTestStore(t).Reviews()

	_, err := reviews.Create(ctx, Review{UserID: "u1", EntityID: "f1", Rating: 0})
	assert.Equal(t, apperrors.CodeInvalidField, apperrors.GetCode(err))
	_, err = reviews.Create(ctx, Review{UserID: "u1", EntityID: "f1", Rating: 11})
	assert.Equal(t, apperrors.CodeInvalidField, apperrors.GetCode(err))

	r, err := reviews.Create(ctx, Review{UserID: "u1", EntityID: "f1", Rating: 5})
	require.NoError(t, err)
	assert.Nil(t, r.Text)

	bad := 42
	err = reviews.Update(ctx, r.ID, ReviewPatch{Rating: &bad})
	assert.Equal(t, apperrors.CodeInvalidField, apperrors.GetCode(err))
}

func TestReviews_MissingIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	reviews := openTestStore(t).Reviews()

	r, err := reviews.Create(ctx, Review{UserID: "u1", EntityID: "f1", Rating: 5})
	require.NoError(t, err)
	require.NoError(t, reviews.Delete(ctx, r.ID))

	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(reviews.Delete(ctx, r.ID)))
	text := "late edit"
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(reviews.Update(ctx, r.ID, ReviewPatch{Text: &text})))
}

func TestBootstrap_Idempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Bootstrap(context.Background()))
}

func TestOpen_SelectsByType(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.ContentConfig{Type: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "c.db")}, nil)
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)

	_, err = Open(ctx, config.ContentConfig{Type: "redis"}, nil)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.GetCode(err))
}

func TestMongoIndexes_UniqueOnUserEntity(t *testing.T) {
	idx := MongoIndexes()
	for _, coll := range []string{BookmarksCollection, LikesCollection} {
		first := idx[coll][0]
		assert.Equal(t, bson.D{{Key: "user_id", Value: 1}, {Key: "entity_id", Value: 1}}, first.Keys, coll)
		require.NotNil(t, first.Options.Unique, coll)
		assert.True(t, *first.Options.Unique, coll)
	}
	assert.Nil(t, idx[ReviewsCollection][0].Options.Unique)
}

func TestReviewUpdate_OnlySetsPatchedFields(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rating := 8
	update := ReviewUpdate(ReviewPatch{Rating: &rating}, now)
	set := update["$set"].(bson.M)
	assert.Equal(t, 8, set["rating"])
	assert.Equal(t, now, set["updated_at"])
	_, hasText := set["text"]
	assert.False(t, hasText)
}

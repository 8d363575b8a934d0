// Package mongodb is the document-store backend. Likes are folded into one
// read-optimized document per movie holding the raw events and running
// counters; bookmarks into one document per user.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/ugcbench/internal/adapter"
	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// Collection names.
const (
	MoviesCollection    = "movies"
	ReviewsCollection   = "reviews"
	BookmarksCollection = "user_bookmarks"
)

func init() {
	adapter.Register(config.BackendMongoDB, func(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (adapter.Adapter, error) {
		return Open(ctx, cfg.Name, cfg.MongoDB, logger)
	})
}

// Store is the MongoDB adapter.
type Store struct {
	name      string
	client    *mongo.Client
	db        *mongo.Database
	movies    *mongo.Collection
	reviews   *mongo.Collection
	bookmarks *mongo.Collection
	logger    *zap.Logger
}

// ParseWriteConcern accepts "majority", a non-negative node count, or a
// replica-set tag name. Empty means majority.
func ParseWriteConcern(s string) (*writeconcern.WriteConcern, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || strings.EqualFold(s, "majority"):
		return writeconcern.Majority(), nil
	case s[0] >= '0' && s[0] <= '9':
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("mongodb: invalid write concern %q", s)
		}
		return &writeconcern.WriteConcern{W: n}, nil
	default:
		return &writeconcern.WriteConcern{W: s}, nil
	}
}

// Open connects, applying the configured write concern to every write.
func Open(ctx context.Context, name string, c config.MongoConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wc, err := ParseWriteConcern(c.WriteConcern)
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidConfig, err.Error())
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI).SetWriteConcern(wc))
	if err != nil {
		return nil, apperrors.NewConnectionError(name, "connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, apperrors.NewConnectionError(name, "ping", err)
	}

	db := client.Database(c.Database)
	logger.Info("connected", zap.String("database", c.Database), zap.String("write_concern", c.WriteConcern))
	return &Store{
		name:      name,
		client:    client,
		db:        db,
		movies:    db.Collection(MoviesCollection),
		reviews:   db.Collection(ReviewsCollection),
		bookmarks: db.Collection(BookmarksCollection),
		logger:    logger,
	}, nil
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return s.name }

// Indexes lists the indexes Setup creates, per collection.
func Indexes() map[string][]mongo.IndexModel {
	unique := func(key string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}, Options: options.Index().SetUnique(true)}
	}
	plain := func(key string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}}
	}
	return map[string][]mongo.IndexModel{
		MoviesCollection:    {unique("movie_id"), plain("likes.user_id")},
		ReviewsCollection:   {unique("review_id"), plain("movie_id")},
		BookmarksCollection: {unique("user_id")},
	}
}

// Setup creates the indexes.
func (s *Store) Setup(ctx context.Context) error {
	for coll, models := range Indexes() {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return apperrors.NewBackendError(apperrors.ErrCategoryConnection, apperrors.CodeSetupFailed, s.name, "create indexes on "+coll, err)
		}
	}
	return nil
}

func (s *Store) collectionFor(e types.Entity) (*mongo.Collection, error) {
	switch e {
	case types.EntityLikes:
		return s.movies, nil
	case types.EntityReviews, types.EntityReviewReactions:
		return s.reviews, nil
	case types.EntityBookmarks:
		return s.bookmarks, nil
	default:
		return nil, fmt.Errorf("mongodb: %w: %q", types.ErrUnknownEntity, e)
	}
}

// WriteModel converts one record into its upsert.
func WriteModel(rec types.Record) (mongo.WriteModel, error) {
	switch r := rec.(type) {
	case types.LikeEvent:
		likes, dislikes := 0, 0
		if r.IsLike() {
			likes = 1
		}
		if r.IsDislike() {
			dislikes = 1
		}
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"movie_id": r.MovieID}).
			SetUpdate(bson.M{
				"$push": bson.M{"likes": bson.M{
					"user_id":    r.UserID,
					"rating":     r.Rating,
					"created_at": r.CreatedAt,
				}},
				"$inc": bson.M{
					"likes_count":    likes,
					"dislikes_count": dislikes,
					"rating_sum":     r.Rating,
					"rating_count":   1,
				},
			}).
			SetUpsert(true), nil

	case types.Review:
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"review_id": r.ReviewID}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"movie_id":          r.MovieID,
				"author_id":         r.AuthorID,
				"text":              r.Text,
				"user_movie_rating": r.UserMovieRating,
				"published_at":      r.PublishedAt,
			}}).
			SetUpsert(true), nil

	case types.ReviewReaction:
		field := "reactions.dislikes"
		if r.IsLike == 1 {
			field = "reactions.likes"
		}
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"review_id": r.ReviewID}).
			SetUpdate(bson.M{"$inc": bson.M{field: 1}}).
			SetUpsert(true), nil

	case types.Bookmark:
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"user_id": r.UserID}).
			SetUpdate(BookmarkUpdate(r.MovieID, r.CreatedAt)).
			SetUpsert(true), nil

	default:
		return nil, fmt.Errorf("mongodb: %w: %T", types.ErrUnsupportedRecord, rec)
	}
}

// BookmarkUpdate appends movieID to the user's bookmark list unless an entry
// for it is already there, whatever its created_at. The first write wins.
func BookmarkUpdate(movieID int64, createdAt time.Time) mongo.Pipeline {
	ids := bson.M{"$ifNull": bson.A{"$movies.movie_id", bson.A{}}}
	movies := bson.M{"$ifNull": bson.A{"$movies", bson.A{}}}
	entry := bson.M{"movie_id": movieID, "created_at": createdAt}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"movies": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{movieID, ids}},
				movies,
				bson.M{"$concatArrays": bson.A{movies, bson.A{entry}}},
			}},
		}}},
	}
}

// WriteBatch sends the batch as one unordered bulk write.
func (s *Store) WriteBatch(ctx context.Context, entity types.Entity, batch []types.Record) error {
	if len(batch) == 0 {
		return nil
	}
	coll, err := s.collectionFor(entity)
	if err != nil {
		return err
	}
	models := make([]mongo.WriteModel, 0, len(batch))
	for _, rec := range batch {
		if rec.Entity() != entity {
			return fmt.Errorf("mongodb: %w: %T in %s batch", types.ErrUnsupportedRecord, rec, entity)
		}
		m, err := WriteModel(rec)
		if err != nil {
			return err
		}
		models = append(models, m)
	}
	if _, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("mongodb: bulk write %s: %w", entity, err)
	}
	return nil
}

// Write applies one upsert.
func (s *Store) Write(ctx context.Context, rec types.Record) error {
	coll, err := s.collectionFor(rec.Entity())
	if err != nil {
		return err
	}
	m, err := WriteModel(rec)
	if err != nil {
		return err
	}
	u := m.(*mongo.UpdateOneModel)
	if _, err := coll.UpdateOne(ctx, u.Filter, u.Update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongodb: write %s: %w", rec.Entity(), err)
	}
	return nil
}

type movieCounters struct {
	MovieID       int64 `bson:"movie_id"`
	LikesCount    int64 `bson:"likes_count"`
	DislikesCount int64 `bson:"dislikes_count"`
	RatingSum     int64 `bson:"rating_sum"`
	RatingCount   int64 `bson:"rating_count"`
}

type bookmarkDoc struct {
	Movies []struct {
		MovieID int64 `bson:"movie_id"`
	} `bson:"movies"`
}

// PointQuery implements adapter.Adapter.
func (s *Store) PointQuery(ctx context.Context, q types.Query) (types.QueryResult, error) {
	res := types.QueryResult{Kind: q.Kind}
	switch q.Kind {
	case types.QueryUserLikes:
		cur, err := s.movies.Find(ctx, bson.M{"likes.user_id": q.UserID},
			options.Find().SetProjection(bson.M{"_id": 0, "movie_id": 1}))
		if err != nil {
			return res, fmt.Errorf("mongodb: %s: %w", q.Kind, err)
		}
		var docs []movieCounters
		if err := cur.All(ctx, &docs); err != nil {
			return res, fmt.Errorf("mongodb: %s: %w", q.Kind, err)
		}
		for _, d := range docs {
			res.MovieIDs = append(res.MovieIDs, d.MovieID)
		}
		res.Rows = len(docs)

	case types.QueryMovieReactions, types.QueryMovieAvg:
		var doc movieCounters
		err := s.movies.FindOne(ctx, bson.M{"movie_id": q.MovieID},
			options.FindOne().SetProjection(bson.M{"likes": 0})).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("mongodb: %s: %w", q.Kind, err)
		}
		res.Rows = 1
		if q.Kind == types.QueryMovieReactions {
			res.Likes, res.Dislikes = doc.LikesCount, doc.DislikesCount
		} else if doc.RatingCount > 0 {
			avg := float64(doc.RatingSum) / float64(doc.RatingCount)
			res.Average = &avg
		}

	case types.QueryUserBookmarks:
		var doc bookmarkDoc
		err := s.bookmarks.FindOne(ctx, bson.M{"user_id": q.UserID},
			options.FindOne().SetProjection(bson.M{"_id": 0, "movies.movie_id": 1})).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("mongodb: %s: %w", q.Kind, err)
		}
		for _, m := range doc.Movies {
			res.MovieIDs = append(res.MovieIDs, m.MovieID)
		}
		res.Rows = 1

	default:
		return res, fmt.Errorf("mongodb: %w: %s", types.ErrUnknownQueryKind, q.Kind)
	}
	return res, nil
}

// VisibilityFilter returns the collection and filter matching p.
func VisibilityFilter(p types.Predicate) (string, bson.M, error) {
	switch p.Entity {
	case types.EntityLikes:
		return MoviesCollection, bson.M{"movie_id": p.MovieID, "likes.user_id": p.UserID}, nil
	case types.EntityBookmarks:
		return BookmarksCollection, bson.M{"user_id": p.UserID, "movies.movie_id": p.MovieID}, nil
	default:
		return "", nil, fmt.Errorf("mongodb: visibility: %w: %q", types.ErrUnknownEntity, p.Entity)
	}
}

// IsVisible implements adapter.Adapter.
func (s *Store) IsVisible(ctx context.Context, p types.Predicate) (bool, error) {
	coll, filter, err := VisibilityFilter(p)
	if err != nil {
		return false, err
	}
	n, err := s.db.Collection(coll).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongodb: visibility: %w", err)
	}
	return n > 0, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

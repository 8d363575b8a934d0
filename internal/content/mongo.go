package content

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names in the content database.
const (
	BookmarksCollection = "bookmarks"
	LikesCollection     = "likes"
	ReviewsCollection   = "reviews"
)

// MongoIndexes lists the indexes Bootstrap creates, per collection.
func MongoIndexes() map[string][]mongo.IndexModel {
	userEntity := func(name string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "entity_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(name),
		}
	}
	return map[string][]mongo.IndexModel{
		BookmarksCollection: {userEntity("uniq_user_entity_bookmark")},
		LikesCollection:     {userEntity("uniq_user_entity_like"), {Keys: bson.D{{Key: "entity_id", Value: 1}}}},
		ReviewsCollection: {{
			Keys:    bson.D{{Key: "entity_id", Value: 1}},
			Options: options.Index().SetName("idx_reviews_entity"),
		}},
	}
}

// MongoStore keeps the content collections in MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
	logger *zap.Logger
}

// OpenMongo connects and pings.
func OpenMongo(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, storeFailed("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, storeFailed("ping", err)
	}
	return &MongoStore{client: client, db: client.Database(database), now: time.Now, logger: logger}, nil
}

// Bootstrap creates the unique (user_id, entity_id) indexes.
func (s *MongoStore) Bootstrap(ctx context.Context) error {
	for coll, models := range MongoIndexes() {
		names, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return storeFailed("create indexes on "+coll, err)
		}
		s.logger.Info("indexes ensured", zap.String("collection", coll), zap.Strings("indexes", names))
	}
	return nil
}

func (s *MongoStore) Bookmarks() Bookmarks {
	return mongoPairs[Bookmark]{s.db.Collection(BookmarksCollection), s.now, "bookmark"}
}

func (s *MongoStore) Likes() Likes {
	return mongoLikes{mongoPairs[Like]{s.db.Collection(LikesCollection), s.now, "like"}}
}

func (s *MongoStore) Reviews() Reviews {
	return mongoReviews{s.db.Collection(ReviewsCollection), s.now}
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

type pairDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     string             `bson:"user_id"`
	EntityType string             `bson:"entity_type"`
	EntityID   string             `bson:"entity_id"`
	CreatedAt  time.Time          `bson:"created_at"`
}

func (d pairDoc) bookmark() Bookmark {
	return Bookmark{
		ID:         d.ID.Hex(),
		UserID:     d.UserID,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

type mongoPairs[T Bookmark | Like] struct {
	coll *mongo.Collection
	now  func() time.Time
	what string
}

func (p mongoPairs[T]) Create(ctx context.Context, v T) (T, error) {
	b := Bookmark(v)
	if err := validateKey(b.UserID, b.EntityID); err != nil {
		return v, err
	}
	doc := pairDoc{
		ID:         primitive.NewObjectID(),
		UserID:     b.UserID,
		EntityType: b.EntityType,
		EntityID:   b.EntityID,
		CreatedAt:  p.now().UTC().Truncate(time.Millisecond),
	}
	_, err := p.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return v, duplicate(p.what, b.UserID, b.EntityID, err)
	}
	if err != nil {
		return v, storeFailed("insert "+p.what, err)
	}
	return T(doc.bookmark()), nil
}

func (p mongoPairs[T]) List(ctx context.Context, userID string) ([]T, error) {
	cur, err := p.coll.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storeFailed("list "+p.what+"s", err)
	}
	var docs []pairDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeFailed("decode "+p.what+"s", err)
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		out = append(out, T(d.bookmark()))
	}
	return out, nil
}

func (p mongoPairs[T]) Delete(ctx context.Context, userID, entityID string) error {
	res, err := p.coll.DeleteOne(ctx, bson.M{"user_id": userID, "entity_id": entityID})
	if err != nil {
		return storeFailed("delete "+p.what, err)
	}
	if res.DeletedCount == 0 {
		return notFound(p.what)
	}
	return nil
}

type mongoLikes struct {
	mongoPairs[Like]
}

func (l mongoLikes) Count(ctx context.Context, entityID string) (int64, error) {
	n, err := l.coll.CountDocuments(ctx, bson.M{"entity_id": entityID})
	if err != nil {
		return 0, storeFailed("count likes", err)
	}
	return n, nil
}

type reviewDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     string             `bson:"user_id"`
	EntityType string             `bson:"entity_type"`
	EntityID   string             `bson:"entity_id"`
	Rating     int                `bson:"rating"`
	Text       *string            `bson:"text"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

func (d reviewDoc) review() Review {
	return Review{
		ID:         d.ID.Hex(),
		UserID:     d.UserID,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		Rating:     d.Rating,
		Text:       d.Text,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

type mongoReviews struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (r mongoReviews) Create(ctx context.Context, v Review) (Review, error) {
	if err := v.validate(); err != nil {
		return v, err
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	doc := reviewDoc{
		ID:         primitive.NewObjectID(),
		UserID:     v.UserID,
		EntityType: v.EntityType,
		EntityID:   v.EntityID,
		Rating:     v.Rating,
		Text:       v.Text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return v, storeFailed("insert review", err)
	}
	return doc.review(), nil
}

func (r mongoReviews) List(ctx context.Context, entityID string) ([]Review, error) {
	cur, err := r.coll.Find(ctx, bson.M{"entity_id": entityID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storeFailed("list reviews", err)
	}
	var docs []reviewDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeFailed("decode reviews", err)
	}
	out := make([]Review, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.review())
	}
	return out, nil
}

// ReviewUpdate builds the $set document for a patch.
func ReviewUpdate(patch ReviewPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now.UTC().Truncate(time.Millisecond)}
	if patch.Rating != nil {
		set["rating"] = *patch.Rating
	}
	if patch.Text != nil {
		set["text"] = *patch.Text
	}
	return bson.M{"$set": set}
}

// Update merges the patch. Ids that are not valid object ids cannot match
// any review and report NOT_FOUND.
func (r mongoReviews) Update(ctx context.Context, id string, patch ReviewPatch) error {
	if err := patch.validate(); err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return notFound("review")
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, ReviewUpdate(patch, r.now()))
	if err != nil {
		return storeFailed("update review", err)
	}
	if res.MatchedCount == 0 {
		return notFound("review")
	}
	return nil
}

func (r mongoReviews) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return notFound("review")
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return storeFailed("delete review", err)
	}
	if res.DeletedCount == 0 {
		return notFound("review")
	}
	return nil
}


// Package clickhouse is the analytical row-store backend. Records land as
// raw rows in MergeTree tables and reads aggregate at query time.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/arkilian/ugcbench/internal/adapter"
	"github.com/arkilian/ugcbench/internal/backend/rowstore"
	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

func init() {
	adapter.Register(config.BackendClickHouse, func(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (adapter.Adapter, error) {
		return Open(ctx, cfg.Name, cfg.ClickHouse, logger)
	})
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS movie_likes (
		user_id UInt64,
		movie_id UInt64,
		rating UInt8,
		created_at DateTime
	) ENGINE = MergeTree
	ORDER BY (movie_id, user_id)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		review_id UInt64,
		movie_id UInt64,
		author_id UInt64,
		review_text String,
		user_movie_rating UInt8,
		published_at DateTime
	) ENGINE = ReplacingMergeTree
	ORDER BY review_id`,
	`CREATE TABLE IF NOT EXISTS review_reactions (
		review_id UInt64,
		user_id UInt64,
		is_like UInt8,
		created_at DateTime
	) ENGINE = MergeTree
	ORDER BY (review_id, user_id)`,
	`CREATE TABLE IF NOT EXISTS bookmarks (
		user_id UInt64,
		movie_id UInt64,
		created_at DateTime
	) ENGINE = ReplacingMergeTree
	ORDER BY (user_id, movie_id)`,
}

const (
	userLikesSQL      = `SELECT movie_id FROM movie_likes WHERE user_id = ?`
	movieReactionsSQL = `SELECT countIf(rating >= ?) AS likes, countIf(rating <= ?) AS dislikes FROM movie_likes WHERE movie_id = ?`
	userBookmarksSQL  = `SELECT movie_id FROM bookmarks FINAL WHERE user_id = ?`
	movieAvgSQL       = `SELECT avg(rating), count() FROM movie_likes WHERE movie_id = ?`
	likeVisibleSQL    = `SELECT count() FROM movie_likes WHERE user_id = ? AND movie_id = ?`
	bookmarkVisSQL    = `SELECT count() FROM bookmarks WHERE user_id = ? AND movie_id = ?`
)

// Store is the ClickHouse adapter.
type Store struct {
	name    string
	db      *sql.DB
	inserts map[types.Entity]string
	logger  *zap.Logger
}

// DSN renders connection settings as a clickhouse:// URL.
func DSN(c config.ClickHouseConfig) string {
	u := url.URL{
		Scheme: "clickhouse",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// Open connects and pings the server.
func Open(ctx context.Context, name string, c config.ClickHouseConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("clickhouse", DSN(c))
	if err != nil {
		return nil, apperrors.NewConnectionError(name, "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewConnectionError(name, "ping", err)
	}

	inserts := make(map[types.Entity]string, len(types.Entities))
	for _, e := range types.Entities {
		t, err := rowstore.TableFor(e)
		if err != nil {
			db.Close()
			return nil, err
		}
		inserts[e] = rowstore.InsertSQL("INSERT", t, false)
	}

	logger.Info("connected", zap.String("host", c.Host), zap.Int("port", c.Port), zap.String("database", c.Database))
	return &Store{name: name, db: db, inserts: inserts, logger: logger}, nil
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return s.name }

// Setup creates the tables.
func (s *Store) Setup(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewBackendError(apperrors.ErrCategoryConnection, apperrors.CodeSetupFailed, s.name, "create schema", err)
		}
	}
	return nil
}

// WriteBatch sends the batch as one native block: a transaction around a
// prepared INSERT.
func (s *Store) WriteBatch(ctx context.Context, entity types.Entity, batch []types.Record) error {
	query, ok := s.inserts[entity]
	if !ok {
		return fmt.Errorf("clickhouse: %w: %q", types.ErrUnknownEntity, entity)
	}
	if err := rowstore.InsertBatch(ctx, s.db, query, Values, batch); err != nil {
		return fmt.Errorf("clickhouse: %s: %w", entity, err)
	}
	return nil
}

// Write inserts a single row. Each call is its own block.
func (s *Store) Write(ctx context.Context, rec types.Record) error {
	return s.WriteBatch(ctx, rec.Entity(), []types.Record{rec})
}

// Values converts a record to the column types of the schema above.
func Values(rec types.Record) ([]any, error) {
	switch r := rec.(type) {
	case types.LikeEvent:
		return []any{uint64(r.UserID), uint64(r.MovieID), uint8(r.Rating), r.CreatedAt}, nil
	case types.Review:
		return []any{uint64(r.ReviewID), uint64(r.MovieID), uint64(r.AuthorID), r.Text, uint8(r.UserMovieRating), r.PublishedAt}, nil
	case types.ReviewReaction:
		return []any{uint64(r.ReviewID), uint64(r.UserID), uint8(r.IsLike), r.CreatedAt}, nil
	case types.Bookmark:
		return []any{uint64(r.UserID), uint64(r.MovieID), r.CreatedAt}, nil
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedRecord, rec)
	}
}

// PointQuery implements adapter.Adapter.
func (s *Store) PointQuery(ctx context.Context, q types.Query) (types.QueryResult, error) {
	res := types.QueryResult{Kind: q.Kind}
	switch q.Kind {
	case types.QueryUserLikes, types.QueryUserBookmarks:
		query := userLikesSQL
		if q.Kind == types.QueryUserBookmarks {
			query = userBookmarksSQL
		}
		rows, err := s.db.QueryContext(ctx, query, uint64(q.UserID))
		if err != nil {
			return res, fmt.Errorf("clickhouse: %s: %w", q.Kind, err)
		}
		ids, err := rowstore.ScanIDs(rows)
		if err != nil {
			return res, fmt.Errorf("clickhouse: %s: %w", q.Kind, err)
		}
		res.MovieIDs, res.Rows = ids, len(ids)

	case types.QueryMovieReactions:
		var likes, dislikes uint64
		err := s.db.QueryRowContext(ctx, movieReactionsSQL, types.LikeRating, types.DislikeRating, uint64(q.MovieID)).
			Scan(&likes, &dislikes)
		if err != nil {
			return res, fmt.Errorf("clickhouse: %s: %w", q.Kind, err)
		}
		res.Likes, res.Dislikes, res.Rows = int64(likes), int64(dislikes), 1

	case types.QueryMovieAvg:
		var avg float64
		var n uint64
		if err := s.db.QueryRowContext(ctx, movieAvgSQL, uint64(q.MovieID)).Scan(&avg, &n); err != nil {
			return res, fmt.Errorf("clickhouse: %s: %w", q.Kind, err)
		}
		// avg over an empty set is nan
		if n > 0 && !math.IsNaN(avg) {
			res.Average = &avg
		}
		res.Rows = 1

	default:
		return res, fmt.Errorf("clickhouse: %w: %s", types.ErrUnknownQueryKind, q.Kind)
	}
	return res, nil
}

// IsVisible implements adapter.Adapter.
func (s *Store) IsVisible(ctx context.Context, p types.Predicate) (bool, error) {
	var query string
	switch p.Entity {
	case types.EntityLikes:
		query = likeVisibleSQL
	case types.EntityBookmarks:
		query = bookmarkVisSQL
	default:
		return false, fmt.Errorf("clickhouse: visibility: %w: %q", types.ErrUnknownEntity, p.Entity)
	}
	var n uint64
	if err := s.db.QueryRowContext(ctx, query, uint64(p.UserID), uint64(p.MovieID)).Scan(&n); err != nil {
		return false, fmt.Errorf("clickhouse: visibility: %w", err)
	}
	return n > 0, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

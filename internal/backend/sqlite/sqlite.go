// Package sqlite is an embedded row-store backend. It keeps the flat
// analytical layout in a single SQLite file in WAL mode and is used for local
// runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arkilian/ugcbench/internal/adapter"
	"github.com/arkilian/ugcbench/internal/backend/rowstore"
	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const maxOpenConns = 16

func init() {
	adapter.Register(config.BackendSQLite, func(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (adapter.Adapter, error) {
		return Open(ctx, cfg.Name, cfg.SQLite.Path, logger)
	})
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS movie_likes (
		user_id INTEGER NOT NULL,
		movie_id INTEGER NOT NULL,
		rating INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movie_likes_user ON movie_likes(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movie_likes_movie ON movie_likes(movie_id)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		review_id INTEGER PRIMARY KEY,
		movie_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		review_text TEXT NOT NULL,
		user_movie_rating INTEGER NOT NULL,
		published_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS review_reactions (
		review_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		is_like INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_reactions_review ON review_reactions(review_id)`,
	`CREATE TABLE IF NOT EXISTS bookmarks (
		user_id INTEGER NOT NULL,
		movie_id INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, movie_id)
	)`,
}

// Keyed entities keep their first write so re-ingestion does not duplicate them.
var insertVerb = map[types.Entity]string{
	types.EntityLikes:           "INSERT",
	types.EntityReviews:         "INSERT OR IGNORE",
	types.EntityReviewReactions: "INSERT",
	types.EntityBookmarks:       "INSERT OR IGNORE",
}

// Store is the SQLite adapter.
type Store struct {
	name    string
	path    string
	db      *sql.DB
	inserts map[types.Entity]string
	logger  *zap.Logger
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, name, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.NewConnectionError(name, "create directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.NewConnectionError(name, "open", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewConnectionError(name, "ping", err)
	}

	inserts := make(map[types.Entity]string, len(insertVerb))
	for e, verb := range insertVerb {
		t, err := rowstore.TableFor(e)
		if err != nil {
			db.Close()
			return nil, err
		}
		inserts[e] = rowstore.InsertSQL(verb, t, true)
	}

	return &Store{name: name, path: path, db: db, inserts: inserts, logger: logger}, nil
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return s.name }

// Setup creates tables and indexes.
func (s *Store) Setup(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewBackendError(apperrors.ErrCategoryConnection, apperrors.CodeSetupFailed, s.name, "create schema", err)
		}
	}
	s.logger.Debug("schema ready", zap.String("path", s.path))
	return nil
}

// WriteBatch inserts the batch in one transaction.
func (s *Store) WriteBatch(ctx context.Context, entity types.Entity, batch []types.Record) error {
	query, ok := s.inserts[entity]
	if !ok {
		return fmt.Errorf("sqlite: %w: %q", types.ErrUnknownEntity, entity)
	}
	if err := rowstore.InsertBatch(ctx, s.db, query, rowstore.Values, batch); err != nil {
		return fmt.Errorf("sqlite: %s: %w", entity, err)
	}
	return nil
}

// Write inserts a single record.
func (s *Store) Write(ctx context.Context, rec types.Record) error {
	query, ok := s.inserts[rec.Entity()]
	if !ok {
		return fmt.Errorf("sqlite: %w: %q", types.ErrUnknownEntity, rec.Entity())
	}
	args, err := rowstore.Values(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: write %s: %w", rec.Entity(), err)
	}
	return nil
}

// PointQuery implements adapter.Adapter.
func (s *Store) PointQuery(ctx context.Context, q types.Query) (types.QueryResult, error) {
	res := types.QueryResult{Kind: q.Kind}
	switch q.Kind {
	case types.QueryUserLikes:
		rows, err := s.db.QueryContext(ctx, `SELECT movie_id FROM movie_likes WHERE user_id = ?`, q.UserID)
		if err != nil {
			return res, fmt.Errorf("sqlite: %s: %w", q.Kind, err)
		}
		ids, err := rowstore.ScanIDs(rows)
		if err != nil {
			return res, fmt.Errorf("sqlite: %s: %w", q.Kind, err)
		}
		res.MovieIDs, res.Rows = ids, len(ids)

	case types.QueryMovieReactions:
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(rating >= ?), 0), COALESCE(SUM(rating <= ?), 0) FROM movie_likes WHERE movie_id = ?`,
			types.LikeRating, types.DislikeRating, q.MovieID,
		).Scan(&res.Likes, &res.Dislikes)
		if err != nil {
			return res, fmt.Errorf("sqlite: %s: %w", q.Kind, err)
		}
		res.Rows = 1

	case types.QueryUserBookmarks:
		rows, err := s.db.QueryContext(ctx, `SELECT movie_id FROM bookmarks WHERE user_id = ? ORDER BY movie_id`, q.UserID)
		if err != nil {
			return res, fmt.Errorf("sqlite: %s: %w", q.Kind, err)
		}
		ids, err := rowstore.ScanIDs(rows)
		if err != nil {
			return res, fmt.Errorf("sqlite: %s: %w", q.Kind, err)
		}
		res.MovieIDs, res.Rows = ids, len(ids)

	case types.QueryMovieAvg:
		var avg sql.NullFloat64
		if err := s.db.QueryRowContext(ctx, `SELECT AVG(rating) FROM movie_likes WHERE movie_id = ?`, q.MovieID).Scan(&avg); err != nil {
			return res, fmt.Errorf("sqlite: %s: %w", q.Kind, err)
		}
		if avg.Valid {
			v := avg.Float64
			res.Average = &v
		}
		res.Rows = 1

	default:
		return res, fmt.Errorf("sqlite: %w: %s", types.ErrUnknownQueryKind, q.Kind)
	}
	return res, nil
}

// IsVisible implements adapter.Adapter.
func (s *Store) IsVisible(ctx context.Context, p types.Predicate) (bool, error) {
	var query string
	switch p.Entity {
	case types.EntityLikes:
		query = `SELECT EXISTS(SELECT 1 FROM movie_likes WHERE user_id = ? AND movie_id = ?)`
	case types.EntityBookmarks:
		query = `SELECT EXISTS(SELECT 1 FROM bookmarks WHERE user_id = ? AND movie_id = ?)`
	default:
		return false, fmt.Errorf("sqlite: visibility: %w: %q", types.ErrUnknownEntity, p.Entity)
	}
	var found bool
	if err := s.db.QueryRowContext(ctx, query, p.UserID, p.MovieID).Scan(&found); err != nil {
		return false, fmt.Errorf("sqlite: visibility: %w", err)
	}
	return found, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

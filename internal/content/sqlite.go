package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, entity_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_likes_entity ON likes(entity_id)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		text TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_entity ON reviews(entity_id)`,
}

// SQLiteStore keeps the content collections in a SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path. Bootstrap must
// run before first use.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storeFailed("create directory", err)
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, storeFailed("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeFailed("ping", err)
	}
	return &SQLiteStore{db: db, now: time.Now, logger: logger}, nil
}

// Bootstrap creates the tables and their unique constraints.
func (s *SQLiteStore) Bootstrap(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeFailed("bootstrap", err)
		}
	}
	s.logger.Info("content store bootstrapped", zap.String("type", "sqlite"))
	return nil
}

func (s *SQLiteStore) Bookmarks() Bookmarks { return sqlitePairs[Bookmark]{s, "bookmarks", "bookmark"} }
func (s *SQLiteStore) Likes() Likes         { return sqliteLikes{sqlitePairs[Like]{s, "likes", "like"}} }
func (s *SQLiteStore) Reviews() Reviews     { return sqliteReviews{s} }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// sqlitePairs serves the two (user, entity) keyed tables.
type sqlitePairs[T Bookmark | Like] struct {
	s     *SQLiteStore
	table string
	what  string
}

func (p sqlitePairs[T]) Create(ctx context.Context, v T) (T, error) {
	b := Bookmark(v)
	if err := validateKey(b.UserID, b.EntityID); err != nil {
		return v, err
	}
	b.ID = uuid.NewString()
	b.CreatedAt = p.s.now().UTC()

	_, err := p.s.db.ExecContext(ctx,
		`INSERT INTO `+p.table+` (id, user_id, entity_type, entity_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.EntityType, b.EntityID, b.CreatedAt)
	if isUniqueViolation(err) {
		return v, duplicate(p.what, b.UserID, b.EntityID, err)
	}
	if err != nil {
		return v, storeFailed("insert "+p.what, err)
	}
	return T(b), nil
}

func (p sqlitePairs[T]) List(ctx context.Context, userID string) ([]T, error) {
	rows, err := p.s.db.QueryContext(ctx,
		`SELECT id, user_id, entity_type, entity_id, created_at FROM `+p.table+` WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storeFailed("list "+p.what+"s", err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.EntityType, &b.EntityID, &b.CreatedAt); err != nil {
			return nil, storeFailed("scan "+p.what, err)
		}
		out = append(out, T(b))
	}
	return out, rows.Err()
}

func (p sqlitePairs[T]) Delete(ctx context.Context, userID, entityID string) error {
	res, err := p.s.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE user_id = ? AND entity_id = ?`, userID, entityID)
	if err != nil {
		return storeFailed("delete "+p.what, err)
	}
	return requireAffected(res, p.what)
}

type sqliteLikes struct {
	sqlitePairs[Like]
}

func (l sqliteLikes) Count(ctx context.Context, entityID string) (int64, error) {
	var n int64
	if err := l.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE entity_id = ?`, entityID).Scan(&n); err != nil {
		return 0, storeFailed("count likes", err)
	}
	return n, nil
}

type sqliteReviews struct {
	s *SQLiteStore
}

func (r sqliteReviews) Create(ctx context.Context, v Review) (Review, error) {
	if err := v.validate(); err != nil {
		return v, err
	}
	v.ID = uuid.NewString()
	v.CreatedAt = r.s.now().UTC()
	v.UpdatedAt = v.CreatedAt

	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, user_id, entity_type, entity_id, rating, text, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.UserID, v.EntityType, v.EntityID, v.Rating, nullString(v.Text), v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return v, storeFailed("insert review", err)
	}
	return v, nil
}

func (r sqliteReviews) List(ctx context.Context, entityID string) ([]Review, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT id, user_id, entity_type, entity_id, rating, text, created_at, updated_at
		FROM reviews WHERE entity_id = ? ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, storeFailed("list reviews", err)
	}
	defer rows.Close()

	out := []Review{}
	for rows.Next() {
		var v Review
		var text sql.NullString
		if err := rows.Scan(&v.ID, &v.UserID, &v.EntityType, &v.EntityID, &v.Rating, &text, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, storeFailed("scan review", err)
		}
		if text.Valid {
			v.Text = &text.String
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Update sets the patched fields and refreshes updated_at.
func (r sqliteReviews) Update(ctx context.Context, id string, patch ReviewPatch) error {
	if err := patch.validate(); err != nil {
		return err
	}
	sets := []string{"updated_at = ?"}
	args := []any{r.s.now().UTC()}
	if patch.Rating != nil {
		sets = append(sets, "rating = ?")
		args = append(args, *patch.Rating)
	}
	if patch.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *patch.Text)
	}
	args = append(args, id)

	res, err := r.s.db.ExecContext(ctx, `UPDATE reviews SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return storeFailed("update review", err)
	}
	return requireAffected(res, "review")
}

func (r sqliteReviews) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return storeFailed("delete review", err)
	}
	return requireAffected(res, "review")
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeFailed("rows affected", err)
	}
	if n == 0 {
		return notFound(what)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

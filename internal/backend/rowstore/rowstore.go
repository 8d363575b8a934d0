// Package rowstore holds the flat analytical table layout shared by the SQL
// backends and the transaction-per-batch insert loop they both use.
package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/arkilian/ugcbench/pkg/types"
)

// Table is one flat table fed by an entity.
type Table struct {
	Name    string
	Columns []string
}

var tables = map[types.Entity]Table{
	types.EntityLikes: {
		Name:    "movie_likes",
		Columns: []string{"user_id", "movie_id", "rating", "created_at"},
	},
	types.EntityReviews: {
		Name:    "reviews",
		Columns: []string{"review_id", "movie_id", "author_id", "review_text", "user_movie_rating", "published_at"},
	},
	types.EntityReviewReactions: {
		Name:    "review_reactions",
		Columns: []string{"review_id", "user_id", "is_like", "created_at"},
	},
	types.EntityBookmarks: {
		Name:    "bookmarks",
		Columns: []string{"user_id", "movie_id", "created_at"},
	},
}

// TableFor returns the table an entity is stored in.
func TableFor(e types.Entity) (Table, error) {
	t, ok := tables[e]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", types.ErrUnknownEntity, e)
	}
	return t, nil
}

// Values returns the column values of rec in Table.Columns order.
func Values(rec types.Record) ([]any, error) {
	switch r := rec.(type) {
	case types.LikeEvent:
		return []any{r.UserID, r.MovieID, r.Rating, r.CreatedAt}, nil
	case types.Review:
		return []any{r.ReviewID, r.MovieID, r.AuthorID, r.Text, r.UserMovieRating, r.PublishedAt}, nil
	case types.ReviewReaction:
		return []any{r.ReviewID, r.UserID, r.IsLike, r.CreatedAt}, nil
	case types.Bookmark:
		return []any{r.UserID, r.MovieID, r.CreatedAt}, nil
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedRecord, rec)
	}
}

// InsertSQL builds "<verb> INTO table (cols)". With placeholders set a
// VALUES clause with one ? per column is appended.
func InsertSQL(verb string, t Table, placeholders bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s INTO %s (%s)", verb, t.Name, strings.Join(t.Columns, ", "))
	if placeholders {
		sb.WriteString(" VALUES (")
		sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

// ValuesFunc converts a record into driver arguments.
type ValuesFunc func(types.Record) ([]any, error)

// InsertBatch executes query once per record inside a single transaction.
// Nothing of the batch is visible unless every row is accepted.
func InsertBatch(ctx context.Context, db *sql.DB, query string, values ValuesFunc, batch []types.Record) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range batch {
		args, err := values(rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ScanIDs drains a single int64 column.
func ScanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package workload

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/internal/stream"
	"github.com/arkilian/ugcbench/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallParams(seed int64) Params {
	return Params{
		Seed:         seed,
		Users:        100,
		Movies:       50,
		Likes:        1000,
		Reviews:      40,
		MaxReactions: 5,
		Bookmarks:    300,
		Skew:         1.3,
	}
}

func drain(t *testing.T, src stream.Source) []types.Record {
	t.Helper()
	var out []types.Record
	for {
		rec, err := src.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestGenerate_SeedFortyTwoWritesThousandLikes(t *testing.T) {
	dir := t.TempDir()
	m, err := NewGenerator(dir, "none", smallParams(42), nil).Generate(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "likes.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1000, bytes.Count(data, []byte("\n")))
	assert.Equal(t, int64(1000), m.Files[types.EntityLikes].Records)

	loaded, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m.DatasetDigest(), loaded.DatasetDigest())
	require.NoError(t, loaded.Verify(dir))
}

func TestGenerate_SameSeedIsByteIdentical(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	ma, err := NewGenerator(a, "none", smallParams(7), nil).Generate(context.Background())
	require.NoError(t, err)
	mb, err := NewGenerator(b, "none", smallParams(7), nil).Generate(context.Background())
	require.NoError(t, err)

	for _, e := range types.Entities {
		da, err := os.ReadFile(filepath.Join(a, e.FileName()))
		require.NoError(t, err)
		db, err := os.ReadFile(filepath.Join(b, e.FileName()))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(da, db), "entity %s differs", e)
	}
	assert.Equal(t, ma.DatasetDigest(), mb.DatasetDigest())

	mc, err := NewGenerator(t.TempDir(), "none", smallParams(8), nil).Generate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, ma.DatasetDigest(), mc.DatasetDigest())
}

func TestGenerate_SnappyDatasetReadsBack(t *testing.T) {
	dir := t.TempDir()
	m, err := NewGenerator(dir, "snappy", smallParams(3), nil).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "likes.jsonl.sz", m.Files[types.EntityLikes].Path)

	r, err := OpenDataset(dir, m, types.EntityLikes)
	require.NoError(t, err)
	defer r.Close()

	src, err := smallParams(3).Source(types.EntityLikes)
	require.NoError(t, err)
	assert.Equal(t, drain(t, src), drain(t, r))
}

func TestVerify_DetectsTampering(t *testing.T) {
	dir := t.TempDir()
	m, err := NewGenerator(dir, "none", smallParams(1), nil).Generate(context.Background())
	require.NoError(t, err)

	path := filepath.Join(dir, m.Files[types.EntityBookmarks].Path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[10] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0644))

	err = m.Verify(dir)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDigestMismatch, apperrors.GetCode(err))
}

func TestLoadManifest_RejectsUnknownEntity(t *testing.T) {
	dir := t.TempDir()
	content := `{"params":{},"compression":"none","files":{"comments":{"path":"comments.jsonl"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(content), 0644))

	_, err := LoadManifest(dir)
	assert.ErrorIs(t, err, types.ErrUnknownEntity)
}

func TestGenerate_CancelledContext(t *testing.T) {
	p := smallParams(1)
	p.Likes = 2 * progressEvery
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := NewGenerator(dir, "none", p, nil).Generate(ctx)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, ManifestFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReviews_DenseIDsAndBoundedText(t *testing.T) {
	src, err := smallParams(5).Source(types.EntityReviews)
	require.NoError(t, err)
	recs := drain(t, src)
	require.Len(t, recs, 40)

	for i, rec := range recs {
		r := rec.(types.Review)
		assert.Equal(t, int64(i+1), r.ReviewID)
		assert.LessOrEqual(t, len(r.Text), maxReviewText)
		assert.NotEmpty(t, r.Text)
		assert.GreaterOrEqual(t, r.MovieID, int64(1))
		assert.LessOrEqual(t, r.MovieID, int64(50))
	}
}

func TestReactions_ReferenceExistingReviews(t *testing.T) {
	p := smallParams(5)
	src, err := p.Source(types.EntityReviewReactions)
	require.NoError(t, err)

	perReview := map[int64]int{}
	last := int64(0)
	for _, rec := range drain(t, src) {
		rr := rec.(types.ReviewReaction)
		assert.GreaterOrEqual(t, rr.ReviewID, last)
		last = rr.ReviewID
		assert.Contains(t, []int{0, 1}, rr.IsLike)
		perReview[rr.ReviewID]++
	}
	for id, n := range perReview {
		assert.LessOrEqual(t, id, p.Reviews)
		assert.LessOrEqual(t, n, p.MaxReactions)
	}
}

func TestBookmarks_UniquePairs(t *testing.T) {
	p := smallParams(11)
	p.Users = 5
	p.Movies = 5
	p.Bookmarks = 500

	src, err := p.Source(types.EntityBookmarks)
	require.NoError(t, err)
	recs := drain(t, src)

	seen := map[uint64]bool{}
	for _, rec := range recs {
		b := rec.(types.Bookmark)
		assert.False(t, seen[b.Key()], "duplicate bookmark %d/%d", b.UserID, b.MovieID)
		seen[b.Key()] = true
	}
	assert.LessOrEqual(t, len(recs), 25)
	assert.Less(t, len(recs), int(p.Bookmarks))
}

func TestLikes_MoviePopularityIsHeavyTailed(t *testing.T) {
	p := smallParams(42)
	p.Movies = 10_000
	p.Likes = 50_000

	src, err := p.Source(types.EntityLikes)
	require.NoError(t, err)

	counts := map[int64]int{}
	ratings := [11]int{}
	for _, rec := range drain(t, src) {
		l := rec.(types.LikeEvent)
		require.GreaterOrEqual(t, l.MovieID, int64(1))
		require.LessOrEqual(t, l.MovieID, p.Movies)
		counts[l.MovieID]++
		ratings[l.Rating]++
	}

	freq := make([]int, 0, len(counts))
	for _, c := range counts {
		freq = append(freq, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(freq)))

	top := 0
	for _, c := range freq[:p.Movies/100] {
		top += c
	}
	// 1% of the catalogue draws well over half of all likes
	assert.Greater(t, top, int(p.Likes)/2)

	peak := 0
	for r := range ratings {
		if ratings[r] > ratings[peak] {
			peak = r
		}
	}
	assert.Equal(t, 8, peak)
	assert.Greater(t, ratings[8], ratings[0]*10)
}

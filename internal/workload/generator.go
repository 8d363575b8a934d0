// Package workload generates the deterministic synthetic dataset the
// benchmark replays: movie likes, reviews, review reactions and bookmarks.
package workload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/internal/stream"
	"github.com/arkilian/ugcbench/pkg/types"
	"go.uber.org/zap"
)

// progressEvery is how many records pass between cancellation checks and
// progress log lines.
const progressEvery = 1 << 16

// Generator writes a dataset directory from Params.
type Generator struct {
	params      Params
	dir         string
	compression string
	logger      *zap.Logger
}

// NewGenerator creates a generator writing into dir.
func NewGenerator(dir, compression string, params Params, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		params:      params,
		dir:         dir,
		compression: compression,
		logger:      logger,
	}
}

// Generate writes one file per entity followed by the manifest. Files are
// written in entity order; a failure leaves any completed files in place but
// no manifest.
func (g *Generator) Generate(ctx context.Context) (*Manifest, error) {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCategoryGenerator, apperrors.CodeWriteFailed,
			"create dataset directory", err)
	}

	m := &Manifest{
		Params:      g.params,
		Compression: g.compression,
		Files:       make(map[types.Entity]FileEntry, len(types.Entities)),
	}
	for _, e := range types.Entities {
		entry, err := g.generateEntity(ctx, e)
		if err != nil {
			return nil, err
		}
		m.Files[e] = entry
	}

	if err := m.Save(g.dir); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCategoryGenerator, apperrors.CodeWriteFailed, "save manifest", err)
	}
	g.logger.Info("dataset generated",
		zap.String("dir", g.dir),
		zap.String("digest", m.DatasetDigest()))
	return m, nil
}

func (g *Generator) generateEntity(ctx context.Context, e types.Entity) (FileEntry, error) {
	name := stream.FileName(e, g.compression)
	path := filepath.Join(g.dir, name)
	start := time.Now()

	src, err := g.params.Source(e)
	if err != nil {
		return FileEntry{}, err
	}
	w, err := stream.Create(path)
	if err != nil {
		return FileEntry{}, apperrors.Wrap(apperrors.ErrCategoryGenerator, apperrors.CodeWriteFailed, name, err)
	}

	fail := func(err error) (FileEntry, error) {
		w.Abort()
		return FileEntry{}, apperrors.Wrap(apperrors.ErrCategoryGenerator, apperrors.CodeWriteFailed, name, err)
	}

	var n int64
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}
		if err := w.Write(rec); err != nil {
			return fail(err)
		}
		n++
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			g.logger.Debug("generating", zap.String("entity", string(e)), zap.Int64("records", n))
		}
	}
	if err := w.Close(); err != nil {
		return FileEntry{}, apperrors.Wrap(apperrors.ErrCategoryGenerator, apperrors.CodeWriteFailed, name, err)
	}

	stats := w.Stats()
	g.logger.Info("entity written",
		zap.String("entity", string(e)),
		zap.String("file", name),
		zap.Int64("records", stats.Records),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("elapsed", time.Since(start)))

	return FileEntry{
		Path:    name,
		Records: stats.Records,
		Bytes:   stats.Bytes,
		Digest:  stats.Digest,
	}, nil
}

// OpenDataset opens the on-disk stream of one entity from a generated
// dataset. The caller closes the returned reader.
func OpenDataset(dir string, m *Manifest, e types.Entity) (*stream.Reader, error) {
	path, ok := m.FilePath(dir, e)
	if !ok {
		return nil, fmt.Errorf("workload: manifest has no %s file", e)
	}
	return stream.Open(path, e)
}

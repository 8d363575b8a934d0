package sink

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/arkilian/ugcbench/internal/errors"
)

// Local is a filesystem sink. It backs report.archive_dir, laying out
// objects the same way the S3 sink does.
type Local struct {
	basePath string
}

// NewLocal creates a sink rooted at basePath.
func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, apperrors.NewSinkError(apperrors.CodeUploadFailed, "failed to create sink directory", err)
	}
	return &Local{basePath: basePath}, nil
}

func (l *Local) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

// Publish copies localPath to key via a temporary file and rename.
func (l *Local) Publish(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := l.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return apperrors.NewSinkError(apperrors.CodeUploadFailed, key, err)
	}
	if err := copyFile(localPath, dest+".tmp"); err != nil {
		return apperrors.NewSinkError(apperrors.CodeUploadFailed, key, err)
	}
	if err := os.Rename(dest+".tmp", dest); err != nil {
		return apperrors.NewSinkError(apperrors.CodeUploadFailed, key, err)
	}
	return nil
}

// Fetch copies key to localPath.
func (l *Local) Fetch(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := l.fullPath(key)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return ErrObjectNotFound
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return apperrors.NewSinkError(apperrors.CodeDownloadFailed, key, err)
	}
	if err := copyFile(src, localPath); err != nil {
		return apperrors.NewSinkError(apperrors.CodeDownloadFailed, key, err)
	}
	return nil
}

// Exists reports whether key has been published.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.fullPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// List returns published keys under prefix in lexical order.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(l.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return err
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewSinkError(apperrors.CodeDownloadFailed, "list "+prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

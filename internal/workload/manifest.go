package workload

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/arkilian/ugcbench/internal/errors"
	"github.com/arkilian/ugcbench/internal/stream"
	"github.com/arkilian/ugcbench/pkg/types"
	"github.com/spaolacci/murmur3"
)

// ManifestFile is the manifest name inside a dataset directory.
const ManifestFile = "manifest.json"

// FileEntry describes one generated dataset file.
type FileEntry struct {
	Path    string `json:"path"`
	Records int64  `json:"records"`
	Bytes   int64  `json:"bytes"`
	Digest  string `json:"digest"`
}

// Manifest records what produced a dataset directory and how to check it.
type Manifest struct {
	Params      Params                     `json:"params"`
	Compression string                     `json:"compression"`
	Files       map[types.Entity]FileEntry `json:"files"`
}

// DatasetDigest folds the per-file digests, in entity order, into one value
// identifying the whole dataset.
func (m *Manifest) DatasetDigest() string {
	h := murmur3.New128()
	for _, e := range types.Entities {
		if f, ok := m.Files[e]; ok {
			h.Write([]byte(e))
			h.Write([]byte(f.Digest))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FilePath returns the absolute location of an entity file under dir.
func (m *Manifest) FilePath(dir string, e types.Entity) (string, bool) {
	f, ok := m.Files[e]
	if !ok {
		return "", false
	}
	return filepath.Join(dir, f.Path), true
}

// Save writes the manifest into dir.
func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("workload: failed to marshal manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("workload: failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("workload: failed to rename manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the manifest of a dataset directory.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("workload: failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("workload: failed to parse manifest: %w", err)
	}
	for e := range m.Files {
		if _, err := types.ParseEntity(string(e)); err != nil {
			return nil, fmt.Errorf("workload: manifest: %w", err)
		}
	}
	return &m, nil
}

// Verify rehashes every listed file and fails on the first size or digest
// that disagrees with the manifest.
func (m *Manifest) Verify(dir string) error {
	for _, e := range types.Entities {
		f, ok := m.Files[e]
		if !ok {
			continue
		}
		got, err := stream.Digest(filepath.Join(dir, f.Path))
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCategoryGenerator, apperrors.CodeDigestMismatch,
				fmt.Sprintf("%s: unreadable", f.Path), err)
		}
		if got.Bytes != f.Bytes || got.Digest != f.Digest {
			return apperrors.New(apperrors.ErrCategoryGenerator, apperrors.CodeDigestMismatch,
				fmt.Sprintf("%s: expected %s (%d bytes), found %s (%d bytes)", f.Path, f.Digest, f.Bytes, got.Digest, got.Bytes))
		}
	}
	return nil
}

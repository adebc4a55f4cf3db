// Package bundle persists the face index of one image folder: the vector
// index, the ledger describing each vector and the set of processed images.
package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-finder/internal/logging"
	"go.uber.org/zap"
)

// File names inside a bundle directory.
const (
	VectorFile   = "index.vec"
	LedgerFile   = "index.json"
	ProgressFile = "progress.json"
)

// Bundle is the in-memory view of a bundle directory.
type Bundle struct {
	Dir      string
	Index    *VectorIndex
	Ledger   *Ledger
	Progress *Progress

	// dirty is set when the index and ledger changed since the last checkpoint.
	dirty  bool
	logger *zap.Logger
}

// Option configures a Bundle.
type Option func(*Bundle)

// WithLogger sets a logger for load and checkpoint events.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bundle) { b.logger = l }
}

// New creates an empty bundle rooted at dir. Nothing is written until Checkpoint.
func New(dir string, opts ...Option) *Bundle {
	b := &Bundle{
		Dir:      dir,
		Index:    NewVectorIndex(),
		Ledger:   NewLedger(),
		Progress: NewProgress(),
		dirty:    true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrNop(b.logger)
	return b
}

// DefaultDir returns the conventional bundle location for a source folder:
// a sibling directory named after the folder plus suffix.
func DefaultDir(sourceFolder, suffix string) string {
	clean := filepath.Clean(sourceFolder)
	return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+suffix)
}

// Load reads a bundle from dir. It returns ErrBundleNotFound when no bundle
// file exists and ErrBundleCorrupt when any file is missing or unreadable.
func Load(dir string, opts ...Option) (*Bundle, error) {
	b := New(dir, opts...)
	b.dirty = false

	files := []string{VectorFile, LedgerFile, ProgressFile}
	var missing []string
	for _, name := range files {
		if _, err := os.Stat(filepath.Join(dir, name)); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, name)
		}
	}
	if len(missing) == len(files) {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, dir)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s is missing %v", ErrBundleCorrupt, dir, missing)
	}

	data, err := os.ReadFile(filepath.Join(dir, VectorFile)) //nolint:gosec // bundle dir is user supplied
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read vectors: %w", ErrBundleCorrupt, err)
	}
	if err := b.Index.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	data, err = os.ReadFile(filepath.Join(dir, LedgerFile)) //nolint:gosec // bundle dir is user supplied
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger: %w", ErrBundleCorrupt, err)
	}
	if err := b.Ledger.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleCorrupt, err)
	}

	data, err = os.ReadFile(filepath.Join(dir, ProgressFile)) //nolint:gosec // bundle dir is user supplied
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read progress: %w", ErrBundleCorrupt, err)
	}
	if err := b.Progress.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleCorrupt, err)
	}

	if err := b.reconcile(); err != nil {
		return nil, err
	}

	b.logger.Debug("bundle loaded",
		zap.String("dir", dir),
		zap.Int("vectors", b.Index.Len()),
		zap.Int("dim", b.Index.Dim()),
		zap.Int("processed", b.Progress.Len()))
	return b, nil
}

// Open loads the bundle in dir for building. A missing or corrupt bundle is
// replaced by a fresh empty one; resumed reports whether an existing bundle
// was loaded.
func Open(dir string, opts ...Option) (b *Bundle, resumed bool, err error) {
	b, err = Load(dir, opts...)
	switch {
	case err == nil:
		return b, true, nil
	case errors.Is(err, ErrBundleNotFound), errors.Is(err, ErrBundleCorrupt):
		fresh := New(dir, opts...)
		if errors.Is(err, ErrBundleCorrupt) {
			fresh.logger.Warn("discarding unusable bundle", zap.String("dir", dir), zap.Error(err))
		}
		return fresh, false, nil
	default:
		return nil, false, err
	}
}

// reconcile repairs a checkpoint torn by a crash. Files are replaced in the
// order vectors, ledger, progress, so a torn write leaves trailing vectors
// or ledger entries of an image that is not yet marked processed.
func (b *Bundle) reconcile() error {
	vectors, records := b.Index.Len(), b.Ledger.Len()
	if vectors < records {
		return fmt.Errorf("%w: ledger has %d records but only %d vectors", ErrBundleCorrupt, records, vectors)
	}

	keep := records
	for keep > 0 {
		rec, _ := b.Ledger.At(keep - 1)
		if b.Progress.Has(rec.SourcePath) {
			break
		}
		keep--
	}
	for i := 0; i < keep; i++ {
		rec, _ := b.Ledger.At(i)
		if !b.Progress.Has(rec.SourcePath) {
			return fmt.Errorf("%w: ledger position %d references unprocessed %s", ErrBundleCorrupt, i, rec.SourcePath)
		}
	}

	if keep != records || keep != vectors {
		b.logger.Warn("trimming incomplete checkpoint",
			zap.String("dir", b.Dir),
			zap.Int("vectors", vectors),
			zap.Int("records", records),
			zap.Int("kept", keep))
		b.Ledger.truncate(keep)
		b.Index.truncate(keep)
		b.dirty = true
	}
	return nil
}

// AddImage records the faces of one fully processed image: vectors are
// appended to the index, one ledger record per vector, and the path is
// marked processed. On a dimension mismatch nothing is changed.
func (b *Bundle) AddImage(path string, vectors [][]float32) error {
	if len(vectors) > 0 {
		if err := b.Index.Append(vectors...); err != nil {
			return fmt.Errorf("image %s: %w", path, err)
		}
		b.Ledger.Append(path, len(vectors))
		b.dirty = true
	}
	b.Progress.Add(path)
	return nil
}

// Record resolves a ledger position to its face record.
func (b *Bundle) Record(position int) (FaceRecord, bool) {
	return b.Ledger.At(position)
}

// Checkpoint durably writes the bundle. Each file is replaced atomically;
// the index and ledger are skipped when unchanged since the last checkpoint.
func (b *Bundle) Checkpoint() error {
	if err := os.MkdirAll(b.Dir, 0750); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	if b.dirty {
		vec, err := b.Index.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to encode vectors: %w", err)
		}
		if err := renameio.WriteFile(filepath.Join(b.Dir, VectorFile), vec, 0600); err != nil {
			return fmt.Errorf("failed to write vectors: %w", err)
		}

		ledger, err := b.Ledger.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode ledger: %w", err)
		}
		if err := renameio.WriteFile(filepath.Join(b.Dir, LedgerFile), ledger, 0600); err != nil {
			return fmt.Errorf("failed to write ledger: %w", err)
		}
	}

	progress, err := b.Progress.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(b.Dir, ProgressFile), progress, 0600); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}

	b.dirty = false
	return nil
}

// Stats summarises bundle contents.
type Stats struct {
	Vectors         int `json:"vectors"`
	Dim             int `json:"dim"`
	Records         int `json:"records"`
	Processed       int `json:"processed"`
	ImagesWithFaces int `json:"images_with_faces"`
}

// Stats returns counts describing the bundle.
func (b *Bundle) Stats() Stats {
	images := make(map[string]struct{})
	for _, rec := range b.Ledger.records {
		images[rec.SourcePath] = struct{}{}
	}
	return Stats{
		Vectors:         b.Index.Len(),
		Dim:             b.Index.Dim(),
		Records:         b.Ledger.Len(),
		Processed:       b.Progress.Len(),
		ImagesWithFaces: len(images),
	}
}

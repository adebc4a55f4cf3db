// Package indexer builds and incrementally extends a face bundle from a
// folder of images.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/kozaktomas/face-finder/internal/embedding"
	"github.com/kozaktomas/face-finder/internal/logging"
	"go.uber.org/zap"
)

// Status summarises how a build ended.
type Status string

const (
	StatusNothingToDo Status = "nothing to do"
	StatusComplete    Status = "complete"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Report describes one build session.
type Report struct {
	Considered  int  // images found in the folder
	Pending     int  // images not yet processed when the session started
	Processed   int  // images newly processed and checkpointed
	Skipped     int  // processed images that contributed no faces
	Unreadable  int  // subset of Skipped that could not be decoded
	FacesAdded  int  // vectors appended to the index
	Interrupted bool // stopped on request before all pending images
	Failed      bool // aborted by an error
}

// Status classifies the session outcome.
func (r *Report) Status() Status {
	switch {
	case r.Failed:
		return StatusFailed
	case r.Interrupted:
		return StatusInterrupted
	case r.Pending == 0:
		return StatusNothingToDo
	default:
		return StatusComplete
	}
}

// Remaining returns the number of pending images left for a later session.
func (r *Report) Remaining() int {
	return r.Pending - r.Processed
}

// ProgressFunc is called with done=0 before the first image and after every
// checkpoint.
type ProgressFunc func(done, total int)

// Builder runs build sessions. It is not safe for concurrent use: a bundle
// has a single writer.
type Builder struct {
	provider   embedding.Provider
	extensions map[string]struct{}
	onProgress ProgressFunc
	logger     *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets a logger for per-image events.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithExtensions overrides the recognised image extensions (case-insensitive, dot optional).
func WithExtensions(exts []string) Option {
	return func(b *Builder) {
		if len(exts) > 0 {
			b.extensions = normalizeExtensions(exts)
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) { b.onProgress = fn }
}

// NewBuilder creates a builder that extracts faces with provider.
func NewBuilder(provider embedding.Provider, opts ...Option) *Builder {
	b := &Builder{
		provider:   provider,
		extensions: normalizeExtensions(DefaultExtensions),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrNop(b.logger)
	return b
}

// Build processes every image of folder that bdl has not seen yet, in sorted
// order, checkpointing bdl after each image.
//
// Cancelling ctx requests a stop: it is checked before each image, never
// during one, so the bundle on disk always ends on a complete image. A
// cancelled session returns a nil error with Report.Interrupted set.
// Provider failures and checkpoint errors abort the session; everything
// checkpointed before stays valid.
func (b *Builder) Build(ctx context.Context, folder string, bdl *bundle.Bundle) (*Report, error) {
	paths, err := b.Scan(folder)
	if err != nil {
		return &Report{Failed: true}, err
	}

	var pending []string
	for _, p := range paths {
		if !bdl.Progress.Has(p) {
			pending = append(pending, p)
		}
	}

	report := &Report{Considered: len(paths), Pending: len(pending)}
	b.logger.Info("build started",
		zap.String("folder", folder),
		zap.String("bundle", bdl.Dir),
		zap.Int("images", len(paths)),
		zap.Int("pending", len(pending)))

	if len(pending) == 0 {
		return report, nil
	}
	b.progress(0, len(pending))

	// The in-flight image always finishes, so it must not see the cancellation.
	work := context.WithoutCancel(ctx)

	for _, path := range pending {
		if ctx.Err() != nil {
			report.Interrupted = true
			b.logger.Info("build interrupted",
				zap.Int("processed", report.Processed),
				zap.Int("remaining", report.Remaining()))
			break
		}

		if err := b.processImage(work, bdl, path, report); err != nil {
			report.Failed = true
			b.logger.Error("build aborted", zapPath(path), zapErr(err))
			return report, err
		}
		b.progress(report.Processed, report.Pending)
	}

	return report, nil
}

// processImage extracts, records and checkpoints a single image.
func (b *Builder) processImage(ctx context.Context, bdl *bundle.Bundle, path string, report *Report) error {
	vectors, err := b.provider.Extract(ctx, path)
	unreadable := errors.Is(err, embedding.ErrUnreadableImage)
	if unreadable {
		b.logger.Warn("image unreadable, marking as processed", zapPath(path), zapErr(err))
		vectors = nil
	} else if err != nil {
		return fmt.Errorf("failed to extract faces from %s: %w", path, err)
	}

	if err := bdl.AddImage(path, vectors); err != nil {
		return err
	}
	if err := bdl.Checkpoint(); err != nil {
		return fmt.Errorf("checkpoint after %s: %w", path, err)
	}

	report.Processed++
	report.FacesAdded += len(vectors)
	if len(vectors) == 0 {
		report.Skipped++
		if unreadable {
			report.Unreadable++
		}
	}
	b.logger.Debug("image processed", zapPath(path), zap.Int("faces", len(vectors)))
	return nil
}

func (b *Builder) progress(done, total int) {
	if b.onProgress != nil {
		b.onProgress(done, total)
	}
}

func zapPath(p string) zap.Field { return zap.String("path", p) }

func zapErr(err error) zap.Field { return zap.Error(err) }

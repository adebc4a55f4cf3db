package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/embedding"
	"github.com/kozaktomas/face-finder/internal/logging"
	"go.uber.org/zap"
)

// newLogger builds the command logger from LOG_DEBUG.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// newProvider returns the embedding server client configured by EMBEDDING_URL.
func newProvider(cfg *config.Config, logger *zap.Logger) *embedding.Client {
	return embedding.NewClient(cfg.Embedding.URL,
		embedding.WithLogger(logger),
		embedding.WithMaxImageSize(cfg.Embedding.MaxImageSize))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadBundle loads an existing bundle for reading and turns the bundle
// errors into messages that name the directory.
func loadBundle(dir string, logger *zap.Logger) (*bundle.Bundle, error) {
	b, err := bundle.Load(dir, bundle.WithLogger(logger))
	switch {
	case errors.Is(err, bundle.ErrBundleNotFound):
		return nil, fmt.Errorf("no face index found in %s, run 'face-finder build' first: %w", dir, err)
	case errors.Is(err, bundle.ErrBundleCorrupt):
		return nil, fmt.Errorf("face index in %s is incomplete or damaged, rebuild it: %w", dir, err)
	case err != nil:
		return nil, fmt.Errorf("failed to load face index: %w", err)
	}
	return b, nil
}

// Package search answers "which images contain this person" queries against
// a face bundle.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/kozaktomas/face-finder/internal/embedding"
	"github.com/kozaktomas/face-finder/internal/logging"
	"go.uber.org/zap"
)

// DefaultNeighbors is the number of nearest stored faces inspected per query
// face. It is large so that many photos of the same person all surface.
const DefaultNeighbors = 200

var (
	// ErrNoFaceDetected indicates the query image has no detectable face.
	ErrNoFaceDetected = errors.New("no face detected in query image")

	// ErrInvalidThreshold indicates a threshold that is not a number.
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// Match is one source image that contains a face similar to a query face.
type Match struct {
	SourcePath string  `json:"path"`
	Score      float64 `json:"score"`
	QueryFace  int     `json:"query_face"` // query face that produced Score
}

// Score converts a squared L2 distance to a similarity in (0, 1].
// A distance of 0 scores 1; larger distances score strictly lower.
func Score(distance float32) float64 {
	return 1 / (1 + float64(distance))
}

// ParseThreshold parses a user supplied similarity threshold. Any number is
// accepted; values above 1 simply match nothing.
func ParseThreshold(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, s)
	}
	return v, nil
}

// Searcher runs queries. It only reads the bundles it is given.
type Searcher struct {
	provider  embedding.Provider
	neighbors int
	logger    *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithNeighbors sets the default k used when Search is called with k <= 0.
func WithNeighbors(k int) Option {
	return func(s *Searcher) {
		if k > 0 {
			s.neighbors = k
		}
	}
}

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Searcher) { s.logger = l }
}

// NewSearcher creates a searcher that embeds query images with provider.
func NewSearcher(provider embedding.Provider, opts ...Option) *Searcher {
	s := &Searcher{provider: provider, neighbors: DefaultNeighbors}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

// Search embeds queryPath and returns every source image of b with a face
// scoring at least threshold against any query face. k <= 0 uses the
// searcher's default neighbour count.
func (s *Searcher) Search(ctx context.Context, b *bundle.Bundle, queryPath string, threshold float64, k int) ([]Match, error) {
	if k <= 0 {
		k = s.neighbors
	}

	faces, err := s.provider.Extract(ctx, queryPath)
	switch {
	case errors.Is(err, embedding.ErrUnreadableImage):
		return nil, fmt.Errorf("%w: %w", ErrNoFaceDetected, err)
	case err != nil:
		return nil, fmt.Errorf("failed to extract query faces: %w", err)
	case len(faces) == 0:
		return nil, ErrNoFaceDetected
	}

	matches, err := Aggregate(b, faces, threshold, k)
	if err != nil {
		return nil, err
	}

	s.logger.Info("query finished",
		zap.String("query", queryPath),
		zap.Int("faces", len(faces)),
		zap.Float64("threshold", threshold),
		zap.Int("k", k),
		zap.Int("matches", len(matches)))
	return matches, nil
}

// Aggregate runs a k-NN search per query face and merges the hits into one
// match per source image. Matches are in order of first discovery (query
// face order, then ascending distance); a source image reached through
// several faces or neighbours keeps its best score.
func Aggregate(b *bundle.Bundle, queryFaces [][]float32, threshold float64, k int) ([]Match, error) {
	var matches []Match
	seen := make(map[string]int) // source path -> index in matches

	for qi, face := range queryFaces {
		neighbors, err := b.Index.Search(face, k)
		if err != nil {
			return nil, fmt.Errorf("query face %d: %w", qi, err)
		}

		for _, n := range neighbors {
			if n.Position == bundle.NoNeighbor {
				continue
			}
			score := Score(n.Distance)
			if score < threshold {
				continue
			}
			rec, ok := b.Record(n.Position)
			if !ok {
				return nil, fmt.Errorf("%w: no ledger record for position %d", bundle.ErrBundleCorrupt, n.Position)
			}

			if i, dup := seen[rec.SourcePath]; dup {
				if score > matches[i].Score {
					matches[i].Score = score
					matches[i].QueryFace = qi
				}
				continue
			}
			seen[rec.SourcePath] = len(matches)
			matches = append(matches, Match{SourcePath: rec.SourcePath, Score: score, QueryFace: qi})
		}
	}

	return matches, nil
}

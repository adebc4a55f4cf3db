// Package embedding turns image files into face embedding vectors.
//
// The actual face detection and embedding model live behind an external
// embedding server; this package only speaks its HTTP protocol and prepares
// images for upload.
package embedding

import (
	"context"
	"errors"
	"math"

	"github.com/viterin/vek/vek32"
)

// ErrUnreadableImage is returned when an image cannot be read or decoded.
// Callers treat it as "no faces" rather than a failure of the whole run.
var ErrUnreadableImage = errors.New("unreadable image")

// Provider extracts face embeddings from an image on disk.
// The returned vectors are unit-normalized and ordered by detection index;
// an image without faces yields an empty slice and a nil error.
type Provider interface {
	Extract(ctx context.Context, imagePath string) ([][]float32, error)
}

// Normalize scales v to unit L2 length in place. Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	norm := math.Sqrt(float64(vek32.Dot(v, v)))
	if norm == 0 {
		return v
	}
	vek32.MulNumber_Inplace(v, float32(1/norm))
	return v
}

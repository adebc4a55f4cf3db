package bundle

import "errors"

var (
	// ErrBundleNotFound indicates none of the bundle files exist in the directory.
	ErrBundleNotFound = errors.New("bundle not found")

	// ErrBundleCorrupt indicates bundle files are missing, unreadable or inconsistent.
	ErrBundleCorrupt = errors.New("bundle corrupt")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

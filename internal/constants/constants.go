// Package constants provides shared constants used across the codebase.
package constants

import "time"

// File upload constants
const (
	// MaxUploadSize is the maximum query image upload size in bytes (32MB)
	MaxUploadSize = 32 << 20
)

// Web server constants
const (
	// RequestTimeout bounds a single API request, extraction included
	RequestTimeout = 2 * time.Minute

	// ReadTimeout is the HTTP server read timeout
	ReadTimeout = 30 * time.Second

	// IdleTimeout is the HTTP server keep-alive timeout
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is how long in-flight requests get on shutdown
	ShutdownTimeout = 10 * time.Second
)

// Progress bar constants
const (
	// ProgressThrottle is the minimum interval between progress bar redraws
	ProgressThrottle = 100 * time.Millisecond
)

package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtensions are the image types picked up when none are configured.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "bmp"}

func normalizeExtensions(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// IsImage reports whether path has one of the builder's image extensions.
func (b *Builder) IsImage(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := b.extensions[ext]
	return ok
}

// Scan walks folder recursively and returns the absolute paths of all image
// files, sorted lexicographically. The order is what makes resumption
// reproducible.
func (b *Builder) Scan(folder string) ([]string, error) {
	absDir, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absDir {
				return walkErr
			}
			b.logger.Warn("skipping unreadable entry", zapPath(path), zapErr(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !b.IsImage(path) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", absDir, err)
	}

	slices.Sort(paths)
	return paths, nil
}

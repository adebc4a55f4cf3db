package search

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio"
)

// CopyFailure records a matched file that could not be copied. The match
// itself stays valid.
type CopyFailure struct {
	SourcePath string
	Err        error
}

func (f CopyFailure) Error() string {
	return fmt.Sprintf("copy %s: %v", f.SourcePath, f.Err)
}

func (f CopyFailure) Unwrap() error { return f.Err }

// ResultsDir returns the directory that receives copies of the matches of
// queryPath: root/<query file name without extension>.
func ResultsDir(root, queryPath string) string {
	base := filepath.Base(queryPath)
	return filepath.Join(root, strings.TrimSuffix(base, filepath.Ext(base)))
}

// CopyMatches copies every matched source file into destDir. Files that
// share a base name are numbered (photo.jpg, photo-1.jpg, ...). A failed copy
// is recorded and the remaining files are still copied; only failing to
// create destDir is returned as an error.
func CopyMatches(matches []Match, destDir string) (copied []string, failures []CopyFailure, err error) {
	if err := os.MkdirAll(destDir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	used := make(map[string]int)
	for _, m := range matches {
		dest := filepath.Join(destDir, uniqueName(used, filepath.Base(m.SourcePath)))
		if err := copyFile(m.SourcePath, dest); err != nil {
			failures = append(failures, CopyFailure{SourcePath: m.SourcePath, Err: err})
			continue
		}
		copied = append(copied, dest)
	}
	return copied, failures, nil
}

func uniqueName(used map[string]int, name string) string {
	n, taken := used[name]
	used[name] = n + 1
	if !taken {
		return name
	}
	ext := filepath.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
	if _, clash := used[candidate]; clash {
		return uniqueName(used, name)
	}
	used[candidate] = 1
	return candidate
}

// copyFile copies src to dst, replacing dst atomically.
func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // src comes from the bundle ledger
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := renameio.TempFile(filepath.Dir(dst), dst)
	if err != nil {
		return err
	}
	defer out.Cleanup() //nolint:errcheck // no-op after a successful replace

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.CloseAtomicallyReplace()
}

package bundle

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Progress is the set of source images that were fully processed.
type Progress struct {
	done map[string]struct{}
}

type progressFile struct {
	Processed []string `json:"procesadas"`
}

// NewProgress creates an empty progress set.
func NewProgress() *Progress {
	return &Progress{done: make(map[string]struct{})}
}

func (p *Progress) Len() int { return len(p.done) }

// Has reports whether path was already processed.
func (p *Progress) Has(path string) bool {
	_, ok := p.done[path]
	return ok
}

// Add marks path as processed.
func (p *Progress) Add(path string) {
	p.done[path] = struct{}{}
}

// Paths returns the processed paths in sorted order.
func (p *Progress) Paths() []string {
	paths := make([]string, 0, len(p.done))
	for path := range p.done {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

// MarshalJSON writes {"procesadas": [...]} with paths sorted.
func (p *Progress) MarshalJSON() ([]byte, error) {
	return marshalIndented(progressFile{Processed: p.Paths()})
}

// UnmarshalJSON reads {"procesadas": [...]}.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var f progressFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to decode progress: %w", err)
	}
	p.done = make(map[string]struct{}, len(f.Processed))
	for _, path := range f.Processed {
		p.done[path] = struct{}{}
	}
	return nil
}

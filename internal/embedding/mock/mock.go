// Package mock provides an in-memory embedding provider for testing.
package mock

import (
	"context"
	"path/filepath"
	"sync"
)

// Provider returns canned embeddings keyed by image base name.
type Provider struct {
	mu    sync.Mutex
	faces map[string][][]float32
	errs  map[string]error
	calls []string

	// OnExtract, if set, runs after every call with the requested path.
	OnExtract func(path string)
}

// NewProvider creates an empty mock provider. Unknown images have no faces.
func NewProvider() *Provider {
	return &Provider{
		faces: make(map[string][][]float32),
		errs:  make(map[string]error),
	}
}

// SetFaces registers the embeddings returned for an image base name.
func (p *Provider) SetFaces(name string, vectors ...[]float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faces[name] = vectors
}

// SetError makes Extract fail for an image base name.
func (p *Provider) SetError(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[name] = err
}

// Calls returns the paths passed to Extract, in call order.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Extract implements embedding.Provider.
func (p *Provider) Extract(ctx context.Context, imagePath string) ([][]float32, error) {
	name := filepath.Base(imagePath)

	p.mu.Lock()
	p.calls = append(p.calls, imagePath)
	err := p.errs[name]
	var out [][]float32
	for _, v := range p.faces[name] {
		out = append(out, append([]float32(nil), v...))
	}
	hook := p.OnExtract
	p.mu.Unlock()

	if hook != nil {
		hook(imagePath)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

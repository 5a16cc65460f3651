package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/mixplay/pkg/corpus"
)

// ErrBackendNotRegistered is returned by [Registry.CreateSource] when no
// factory has been registered for the configured backend.
var ErrBackendNotRegistered = errors.New("config: corpus backend not registered")

// SourceFactory builds a transcript source from the configuration. Sources
// that hold resources may also implement io.Closer.
type SourceFactory func(ctx context.Context, cfg *Config) (corpus.Source, error)

// Registry maps corpus backend names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[Backend]SourceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sources: make(map[Backend]SourceFactory)}
}

// RegisterSource registers factory under backend, replacing any previous
// registration.
func (r *Registry) RegisterSource(backend Backend, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[backend] = factory
}

// CreateSource builds the source for cfg.Corpus.Backend.
func (r *Registry) CreateSource(ctx context.Context, cfg *Config) (corpus.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Corpus.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Corpus.Backend)
	}
	src, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create %s source: %w", cfg.Corpus.Backend, err)
	}
	return src, nil
}

// Backends returns the registered backend names, sorted.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.sources))
	for b := range r.sources {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}

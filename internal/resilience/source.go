package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/mixplay/pkg/corpus"
)

// ErrAllSourcesFailed is returned by [FallbackSource.Load] when no source
// produced records.
var ErrAllSourcesFailed = errors.New("resilience: all transcript sources failed")

type member struct {
	name    string
	src     corpus.Source
	breaker *Breaker
}

// FallbackSource loads from the first healthy source of an ordered list.
// Each source sits behind its own [Breaker].
type FallbackSource struct {
	members []member
	opts    []BreakerOption

	mu     sync.Mutex
	served string
}

var (
	_ corpus.Source = (*FallbackSource)(nil)
	_ io.Closer     = (*FallbackSource)(nil)
)

// NewFallbackSource returns a source trying primary first. opts configure
// the breaker of every member.
func NewFallbackSource(name string, primary corpus.Source, opts ...BreakerOption) *FallbackSource {
	fs := &FallbackSource{opts: opts}
	fs.Add(name, primary)
	return fs
}

// Add appends a fallback tried after all previously added sources.
func (fs *FallbackSource) Add(name string, src corpus.Source) {
	fs.members = append(fs.members, member{
		name:    name,
		src:     src,
		breaker: NewBreaker(name, fs.opts...),
	})
}

// Load returns the records of the first source that loads successfully.
// Sources with an open breaker are skipped.
func (fs *FallbackSource) Load(ctx context.Context) ([]corpus.Record, error) {
	var errs []error
	for i := range fs.members {
		m := &fs.members[i]
		var records []corpus.Record
		err := m.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			records, err = m.src.Load(ctx)
			return err
		})
		if err == nil {
			fs.setServed(m.name, i)
			return records, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if errors.Is(err, ErrOpen) {
			slog.Debug("transcript source skipped, circuit open", "source", m.name)
			continue
		}
		slog.Warn("transcript source failed, trying next", "source", m.name, "err", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
}

func (fs *FallbackSource) setServed(name string, pos int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.served != name && pos > 0 {
		slog.Warn("index loaded from fallback source", "source", name)
	}
	fs.served = name
}

// Served returns the name of the source that answered the last successful
// Load, or "" before the first one.
func (fs *FallbackSource) Served() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.served
}

// Ping probes the primary when it supports pinging.
func (fs *FallbackSource) Ping(ctx context.Context) error {
	if p, ok := fs.members[0].src.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes every member implementing io.Closer.
func (fs *FallbackSource) Close() error {
	var errs []error
	for _, m := range fs.members {
		if c, ok := m.src.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

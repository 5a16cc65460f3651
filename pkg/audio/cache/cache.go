// Package cache memoises decoded audio files by path.
//
// Entries are bounded by count and evicted least-recently-used. Concurrent
// requests for the same missing path share one load. Cached buffers are
// shared between callers and must be treated as read-only.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/mixplay/pkg/audio"
)

// DefaultSize is the default number of decoded files kept.
const DefaultSize = 32

// LoadFunc decodes the file at path.
type LoadFunc func(ctx context.Context, path string) (audio.Buffer, error)

// Option configures a [Cache].
type Option func(*Cache)

// WithObserver registers fn to be called on every lookup with whether it was
// served from memory.
func WithObserver(fn func(ctx context.Context, hit bool)) Option {
	return func(c *Cache) { c.observe = fn }
}

// Cache is a bounded, concurrency-safe decode cache. The zero value is not
// usable; construct with [New].
type Cache struct {
	entries *lru.Cache[string, audio.Buffer]
	group   singleflight.Group
	load    LoadFunc
	observe func(ctx context.Context, hit bool)
}

// New returns a cache holding at most size decoded files, filled by load.
// A size ≤ 0 selects [DefaultSize].
func New(size int, load LoadFunc, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, audio.Buffer](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c := &Cache{entries: entries, load: load}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Get returns the decoded file at path, loading it on a miss. Load errors
// are not cached.
func (c *Cache) Get(ctx context.Context, path string) (audio.Buffer, error) {
	if b, ok := c.entries.Get(path); ok {
		c.report(ctx, true)
		return b, nil
	}
	c.report(ctx, false)

	v, err, _ := c.group.Do(path, func() (any, error) {
		// Another flight may have filled the entry while we queued.
		if b, ok := c.entries.Peek(path); ok {
			return b, nil
		}
		b, err := c.load(ctx, path)
		if err != nil {
			return nil, err
		}
		c.entries.Add(path, b)
		return b, nil
	})
	if err != nil {
		return audio.Buffer{}, err
	}
	return v.(audio.Buffer), nil
}

// Contains reports whether path is cached, without touching its recency.
func (c *Cache) Contains(path string) bool {
	return c.entries.Contains(path)
}

// Len returns the number of cached files.
func (c *Cache) Len() int { return c.entries.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.entries.Purge() }

func (c *Cache) report(ctx context.Context, hit bool) {
	if c.observe != nil {
		c.observe(ctx, hit)
	}
}

// Package app wires the mixplay subsystems into a running application.
//
// App owns the live corpus index, the composer built on it and the audio
// assembler. The index is held as an immutable snapshot that [App.Reload]
// replaces atomically, so searches and compositions never observe a
// half-built index and never block on a rebuild.
//
// For testing, inject doubles via functional options (WithDecoder,
// WithMetrics). The transcript source is always passed in by the caller,
// usually built through the config registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/config"
	"github.com/MrWong99/mixplay/internal/match"
	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/pkg/audio/wav"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

// ErrNotReady is returned before the first index build completed.
var ErrNotReady = errors.New("app: index not ready")

// snapshot is one immutable generation of the index and everything
// derived from it.
type snapshot struct {
	index    *corpus.Index
	matcher  *match.Matcher
	composer *compose.Composer
	builtAt  time.Time
}

// App owns all subsystem lifetimes.
type App struct {
	source   corpus.Source
	decoder  assemble.Decoder
	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	newID    func() string

	cfgMu sync.RWMutex
	cfg   *config.Config

	snap      atomic.Pointer[snapshot]
	reloadMu  sync.Mutex
	assembler *assemble.Assembler

	watchers []interface{ Stop() }

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithDecoder replaces the WAV file decoder.
func WithDecoder(d assemble.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the log level at runtime.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithIDGenerator replaces the UUID generator naming generated files.
func WithIDGenerator(fn func() string) Option {
	return func(a *App) { a.newID = fn }
}

// WithCloser registers fn to run during Shutdown, e.g. to close the source.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App over src and builds the initial index synchronously.
func New(ctx context.Context, cfg *config.Config, src corpus.Source, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		source:  src,
		decoder: wav.FileDecoder{},
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	asm, err := assemble.New(a.decoder,
		assemble.WithMetrics(a.metrics),
		assemble.WithCacheSize(cfg.Cache.Size),
		assemble.WithConcurrency(cfg.Cache.Concurrency),
		assemble.WithFormat(cfg.Render.Format()),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init assembler: %w", err)
	}
	a.assembler = asm

	if _, err := a.Reload(ctx); err != nil {
		return nil, fmt.Errorf("app: initial index: %w", err)
	}
	return a, nil
}

// Config returns the current configuration. Callers must not modify it.
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// ReloadResult summarises one index build.
type ReloadResult struct {
	Records     int           `json:"records"`
	Skipped     int           `json:"skipped_records"`
	Occurrences int           `json:"total_words"`
	UniqueWords int           `json:"unique_words"`
	Duration    time.Duration `json:"duration"`
}

// Reload rebuilds the index from the source and swaps it in atomically.
// Concurrent calls are serialised. On failure the previous index stays live.
func (a *App) Reload(ctx context.Context) (ReloadResult, error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "app.Reload")
	idx, err := corpus.BuildFrom(ctx, a.source)
	if err != nil {
		observe.EndSpan(span, err)
		return ReloadResult{}, err
	}
	a.snap.Store(a.newSnapshot(idx))
	span.End()

	res := ReloadResult{
		Records:     idx.Records(),
		Skipped:     idx.Skipped(),
		Occurrences: idx.Occurrences(),
		UniqueWords: idx.Len(),
		Duration:    time.Since(start),
	}
	a.metrics.IndexBuildDuration.Record(ctx, res.Duration.Seconds())
	a.metrics.IndexedOccurrences.Record(ctx, int64(res.Occurrences))
	observe.Logger(ctx).Info("index reloaded",
		"records", res.Records,
		"occurrences", res.Occurrences,
		"unique_words", res.UniqueWords,
		"duration", res.Duration,
	)
	return res, nil
}

// newSnapshot derives the matcher and composer for idx from the current
// config.
func (a *App) newSnapshot(idx *corpus.Index) *snapshot {
	cfg := a.Config()
	m := match.New(idx, cfg.Match.MatcherOptions()...)
	sel := compose.NewSelector(m, cfg.Compose.SelectorOptions()...)
	return &snapshot{
		index:    idx,
		matcher:  m,
		composer: compose.New(sel, compose.WithMetrics(a.metrics)),
		builtAt:  time.Now(),
	}
}

func (a *App) current() (*snapshot, error) {
	s := a.snap.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Ready reports whether an index is live.
func (a *App) Ready() bool { return a.snap.Load() != nil }

// Index returns the live index.
func (a *App) Index() *corpus.Index {
	if s := a.snap.Load(); s != nil {
		return s.index
	}
	return nil
}

// Search runs the multi-tier search for term on the live index.
func (a *App) Search(ctx context.Context, term string, max int) (match.Result, error) {
	s, err := a.current()
	if err != nil {
		return match.Result{}, err
	}
	start := time.Now()
	res := s.matcher.SearchTier(term, max)
	a.metrics.RecordSearch(ctx, res.Tier.String(), time.Since(start).Seconds())
	return res, nil
}

// ComposeOptions returns the configured composition defaults.
func (a *App) ComposeOptions() compose.Options {
	return a.Config().Compose.Options()
}

// RenderOptions returns the configured render defaults.
func (a *App) RenderOptions() assemble.Options {
	opts, err := a.Config().Render.Options()
	if err != nil {
		// Validated at load time.
		return assemble.DefaultOptions()
	}
	return opts
}

// Compose builds a sentence from words on the live index.
func (a *App) Compose(ctx context.Context, words []string, opts compose.Options) (*compose.Sentence, error) {
	s, err := a.current()
	if err != nil {
		return nil, err
	}
	return s.composer.Compose(ctx, words, opts)
}

// Render assembles the audio for a composed sentence.
func (a *App) Render(ctx context.Context, sentence *compose.Sentence, opts assemble.Options) (*assemble.Render, error) {
	return a.assembler.AssembleSentence(ctx, sentence, opts)
}

// Stats returns statistics of the live index.
func (a *App) Stats(top int) (corpus.Stats, error) {
	s, err := a.current()
	if err != nil {
		return corpus.Stats{}, err
	}
	return s.index.Stats(top), nil
}

// Words returns the vocabulary of the live index, sorted.
func (a *App) Words() ([]string, error) {
	s, err := a.current()
	if err != nil {
		return nil, err
	}
	words := slices.Clone(s.index.Keys())
	slices.Sort(words)
	return words, nil
}

// RandomWords returns up to n distinct vocabulary entries in random order.
func (a *App) RandomWords(n int) ([]string, error) {
	s, err := a.current()
	if err != nil {
		return nil, err
	}
	keys := s.index.Keys()
	n = min(max(n, 0), len(keys))
	out := make([]string, 0, n)
	for _, i := range rand.Perm(len(keys))[:n] {
		out = append(out, keys[i])
	}
	return out, nil
}

// ApplyConfig applies the runtime-changeable parts of a new config. It is
// meant as the callback of a config watcher.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.Empty() {
		return
	}

	a.cfgMu.Lock()
	a.cfg = updated
	a.cfgMu.Unlock()

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MatchChanged || d.ComposeChanged {
		if s := a.snap.Load(); s != nil {
			a.snap.CompareAndSwap(s, a.newSnapshot(s.index))
		}
	}
	if d.CorpusChanged {
		slog.Warn("corpus settings changed; restart to switch transcript source")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// Shutdown stops watchers and runs closers in order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for _, w := range a.watchers {
			w.Stop()
		}
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}

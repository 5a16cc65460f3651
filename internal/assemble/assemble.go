// Package assemble renders a composed sentence into a single audio buffer.
//
// Rendering decodes each selected occurrence's audio file (through a bounded
// cache), cuts the word out with padding on both sides, optionally changes
// its tempo, normalises it, applies mode-dependent fades and joins the
// segments with silence and crossfades. The result is normalised once more
// as a whole.
package assemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/pkg/audio"
	"github.com/MrWong99/mixplay/pkg/audio/cache"
	"github.com/MrWong99/mixplay/pkg/audio/stretch"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

// Defaults for [Options].
const (
	DefaultPadding         = 100 * time.Millisecond
	DefaultGap             = 300 * time.Millisecond
	DefaultCrossfade       = 50 * time.Millisecond
	DefaultSegmentHeadroom = 20.0
	DefaultFinalHeadroom   = 10.0
	DefaultConcurrency     = 4
)

// Decoder loads a whole audio file.
type Decoder interface {
	Decode(ctx context.Context, path string) (audio.Buffer, error)
}

// Options control one render.
type Options struct {
	Mode Mode

	// Tempo is the playback speed factor; values above 1 speed up. 0 and 1
	// leave segments untouched.
	Tempo float64

	// Stretch selects how tempo is changed.
	Stretch stretch.Mode

	// Padding is kept before and after each word, clamped to the file.
	Padding time.Duration

	// Gap is the nominal silence between words.
	Gap time.Duration

	// Crossfade is the base crossfade; modes derive their own from it.
	Crossfade time.Duration

	// SegmentHeadroom and FinalHeadroom are peak targets in dB below full
	// scale.
	SegmentHeadroom float64
	FinalHeadroom   float64
}

// DefaultOptions returns standard-mode options at normal tempo.
func DefaultOptions() Options {
	return Options{
		Mode:            ModeStandard,
		Tempo:           1,
		Stretch:         stretch.ModePreservePitch,
		Padding:         DefaultPadding,
		Gap:             DefaultGap,
		Crossfade:       DefaultCrossfade,
		SegmentHeadroom: DefaultSegmentHeadroom,
		FinalHeadroom:   DefaultFinalHeadroom,
	}
}

// Render is the output of [Assembler.Assemble].
type Render struct {
	Audio audio.Buffer
	Mode  Mode

	// Segments is the number of word segments rendered, one per word.
	Segments int

	// Joins is the number of word boundaries.
	Joins int

	// Silence is the total digital silence inserted between words. Crossfade
	// overlap is not included, so an artistic render at a gap shorter than
	// its crossfade reports none.
	Silence time.Duration

	// Crossfade is the total length of applied crossfade transitions.
	Crossfade time.Duration

	// Spacing is Silence plus Crossfade: the time spent between words.
	Spacing time.Duration

	// StretchFallbacks counts segments used at original tempo because the
	// stretch failed.
	StretchFallbacks int
}

// Duration returns the length of the rendered audio.
func (r *Render) Duration() time.Duration { return r.Audio.Duration() }

// Option configures an [Assembler].
type Option func(*Assembler)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// WithCacheSize sets how many decoded files are kept. Default:
// [cache.DefaultSize].
func WithCacheSize(n int) Option {
	return func(a *Assembler) { a.cacheSize = n }
}

// WithConcurrency limits how many files are decoded in parallel. Default: 4.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithFormat fixes the output format. By default the format of the first
// word's file is used and every other file is converted to it.
func WithFormat(f audio.Format) Option {
	return func(a *Assembler) { a.format = f }
}

// Assembler renders sentences. It is safe for concurrent use; decoded files
// are shared through its cache.
type Assembler struct {
	cache       *cache.Cache
	metrics     *observe.Metrics
	cacheSize   int
	concurrency int
	format      audio.Format
}

// New returns an [Assembler] loading files with dec.
func New(dec Decoder, opts ...Option) (*Assembler, error) {
	a := &Assembler{concurrency: DefaultConcurrency}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	c, err := cache.New(a.cacheSize, dec.Decode, cache.WithObserver(a.metrics.RecordCacheLookup))
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	a.cache = c
	return a, nil
}

// Cached returns the number of decoded files currently held.
func (a *Assembler) Cached() int { return a.cache.Len() }

// AssembleSentence renders the words of s.
func (a *Assembler) AssembleSentence(ctx context.Context, s *compose.Sentence, opts Options) (*Render, error) {
	return a.Assemble(ctx, s.Words, opts)
}

// Assemble renders words in order. A decode failure for any word, or a word
// whose range holds no audio, aborts the render with a [*DecodeError].
func (a *Assembler) Assemble(ctx context.Context, words []corpus.Occurrence, opts Options) (*Render, error) {
	if len(words) == 0 {
		return nil, ErrNoWords
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "assemble.Assemble", trace.WithAttributes(
		attribute.String("mode", opts.Mode.String()),
		attribute.Int("words", len(words)),
	))
	log := observe.Logger(ctx)

	files, err := a.prefetch(ctx, words)
	if err != nil {
		observe.EndSpan(span, err)
		return nil, err
	}

	target := a.format
	if !target.Valid() {
		target = files[words[0].AudioPath].Format
	}
	conv := &audio.FormatConverter{Target: target}

	r := &Render{Mode: opts.Mode, Segments: len(words)}
	var out audio.Buffer
	for i, occ := range words {
		seg, err := a.segment(ctx, files[occ.AudioPath], occ, opts, conv, r)
		if err != nil {
			err = &DecodeError{Position: i, Occurrence: occ, Err: err}
			observe.EndSpan(span, err)
			return nil, err
		}
		if i == 0 {
			out = seg
			continue
		}
		if out, err = a.join(out, seg, opts, r); err != nil {
			observe.EndSpan(span, err)
			return nil, fmt.Errorf("assemble: join word %d: %w", i, err)
		}
	}
	audio.Normalize(out, opts.FinalHeadroom)

	r.Audio = out
	r.Spacing = r.Silence + r.Crossfade
	a.metrics.RenderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("mode", opts.Mode.String())))
	log.Debug("assemble: rendered",
		"mode", opts.Mode.String(),
		"segments", r.Segments,
		"duration", r.Duration(),
		"spacing", r.Spacing,
		"stretch_fallbacks", r.StretchFallbacks,
	)
	span.End()
	return r, nil
}

// prefetch decodes every distinct file referenced by words.
func (a *Assembler) prefetch(ctx context.Context, words []corpus.Occurrence) (map[string]audio.Buffer, error) {
	var (
		mu    sync.Mutex
		files = make(map[string]audio.Buffer)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	seen := make(map[string]bool)
	for i, occ := range words {
		if seen[occ.AudioPath] {
			continue
		}
		seen[occ.AudioPath] = true
		g.Go(func() error {
			b, err := a.cache.Get(gctx, occ.AudioPath)
			if err == nil && !b.Valid() {
				err = fmt.Errorf("invalid format %s", b.Format)
			}
			if err != nil {
				return &DecodeError{Position: i, Occurrence: occ, Err: err}
			}
			mu.Lock()
			files[occ.AudioPath] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// segment cuts, converts, stretches, normalises and fades one word.
func (a *Assembler) segment(ctx context.Context, file audio.Buffer, occ corpus.Occurrence, opts Options, conv *audio.FormatConverter, r *Render) (audio.Buffer, error) {
	if seconds(occ.Start) >= file.Duration() {
		return audio.Buffer{}, fmt.Errorf("%w: starts at %.3fs, file is %v", ErrEmptySlice, occ.Start, file.Duration())
	}
	cut := file.Slice(seconds(occ.Start)-opts.Padding, seconds(occ.End)+opts.Padding)
	if cut.Frames() == 0 {
		return audio.Buffer{}, fmt.Errorf("%w: %.3fs to %.3fs", ErrEmptySlice, occ.Start, occ.End)
	}
	seg := conv.Convert(cut)

	if opts.Tempo != 0 && opts.Tempo != 1 {
		stretched, err := stretch.Stretch(seg, opts.Tempo, opts.Stretch)
		if err != nil {
			r.StretchFallbacks++
			a.metrics.StretchFallbacks.Add(ctx, 1)
			observe.Logger(ctx).Warn("assemble: tempo change failed, using original segment",
				"word", occ.Surface,
				"source", occ.SourceID,
				"tempo", opts.Tempo,
				"err", err,
			)
		} else {
			seg = stretched
		}
	}

	audio.Normalize(seg, opts.SegmentHeadroom)
	if n := opts.Mode.fadeFrames(seg.Format, seg.Frames()); n > 0 {
		audio.FadeIn(seg, n)
		audio.FadeOut(seg, n)
	}
	return seg, nil
}

// join appends seg to out following the mode's join strategy.
func (a *Assembler) join(out, seg audio.Buffer, opts Options, r *Render) (audio.Buffer, error) {
	f := out.Format
	j := opts.Mode.joinFor(opts.Gap, opts.Crossfade)
	silence := f.FrameCount(j.silence)
	cross := f.FrameCount(j.crossfade)

	canCross := cross > 0 && out.Frames()+silence > cross && seg.Frames() > cross
	if !canCross {
		cross = 0
		if j.keepGapWithoutCrossfade {
			silence = f.FrameCount(opts.Gap)
		}
	}

	out.Samples = append(out.Samples, make([]float32, silence*f.Channels)...)
	r.Joins++
	r.Silence += f.FrameDuration(silence)
	if cross == 0 {
		return audio.Concat(out, seg)
	}
	r.Crossfade += f.FrameDuration(cross)
	return audio.Crossfade(out, seg, cross)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

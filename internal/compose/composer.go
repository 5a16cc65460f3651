// Package compose turns a list of words into a sentence of recorded word
// occurrences, preferring confident recordings while spreading selections
// across sources and speakers.
package compose

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

// Defaults for [Options].
const (
	DefaultMinConfidence = 0.5
	DefaultGap           = 500 * time.Millisecond
)

// Missing-word reasons.
const (
	ReasonNotFound        = "not_found"
	ReasonBelowConfidence = "below_confidence"
)

// Options control one composition.
type Options struct {
	// MinConfidence drops candidates below this ASR confidence.
	MinConfidence float64

	// PreferredSpeakers narrows candidates to these speakers whenever at
	// least one of them said the word.
	PreferredSpeakers []string

	// Diversity enables the usage-based bonus.
	Diversity bool

	// Gap is the silence assumed between words for TotalDuration.
	Gap time.Duration
}

// DefaultOptions returns options with diversity enabled and the default
// confidence floor and gap.
func DefaultOptions() Options {
	return Options{
		MinConfidence: DefaultMinConfidence,
		Diversity:     true,
		Gap:           DefaultGap,
	}
}

// Sentence is the result of a composition. It is not modified after
// [Composer.Compose] returns.
type Sentence struct {
	Text          string              `json:"text"`
	Requested     []string            `json:"requested"`
	Words         []corpus.Occurrence `json:"words"`
	Tiers         []string            `json:"tiers"`
	TotalDuration float64             `json:"total_duration"`
	SpeakersUsed  []string            `json:"speakers_used"`
	FilesUsed     []string            `json:"files_used"`
	Gap           time.Duration       `json:"gap"`
	Missing       []MissingWord       `json:"missing,omitempty"`

	// Reused counts selections whose (source, speaker) pair had already been
	// used earlier in the same sentence.
	Reused int `json:"reused"`
}

// Duration returns TotalDuration as a [time.Duration].
func (s *Sentence) Duration() time.Duration {
	return time.Duration(s.TotalDuration * float64(time.Second))
}

// Option configures a [Composer].
type Option func(*Composer)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Composer) { c.metrics = m }
}

// Composer builds sentences. It holds no per-composition state and is safe
// for concurrent use as long as its [Selector]'s searcher is.
type Composer struct {
	sel     *Selector
	metrics *observe.Metrics
}

// New returns a [Composer] selecting with sel.
func New(sel *Selector, opts ...Option) *Composer {
	c := &Composer{sel: sel}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// SplitWords splits free text into the word list accepted by
// [Composer.Compose].
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// Compose selects one occurrence per requested word, in order.
//
// Words without a selectable occurrence are recorded in [Sentence.Missing]
// and do not stop the composition. When no word at all is selected the
// returned error is an [*EmptyCompositionError] matching
// [ErrEmptyComposition]; the partial sentence is returned alongside it for
// diagnostics.
func (c *Composer) Compose(ctx context.Context, words []string, opts Options) (*Sentence, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "compose.Compose")
	log := observe.Logger(ctx)

	ledger := NewLedger()
	out := &Sentence{
		Requested: slices.Clone(words),
		Gap:       opts.Gap,
	}

	for i, w := range words {
		if err := ctx.Err(); err != nil {
			observe.EndSpan(span, err)
			return nil, err
		}

		var history *Ledger
		if opts.Diversity {
			history = ledger
		}
		searchStart := time.Now()
		choice, err := c.sel.Select(w, history, opts.MinConfidence, opts.PreferredSpeakers)
		c.metrics.RecordSearch(ctx, choice.Tier.String(), time.Since(searchStart).Seconds())
		if err != nil {
			reason := ReasonNotFound
			if errors.Is(err, errBelowConfidence) {
				reason = ReasonBelowConfidence
			}
			out.Missing = append(out.Missing, MissingWord{Position: i, Word: w, Reason: reason})
			log.Debug("compose: word missing", "word", w, "reason", reason)
			continue
		}

		occ := choice.Occurrence
		if ledger.Count(KeyOf(occ)) > 0 {
			out.Reused++
		}
		ledger.Use(occ)
		out.Words = append(out.Words, occ)
		out.Tiers = append(out.Tiers, choice.Tier.String())
		log.Debug("compose: word selected",
			"word", w,
			"tier", choice.Tier.String(),
			"source", occ.SourceID,
			"speaker", occ.Speaker,
			"confidence", occ.Confidence,
			"score", choice.Score,
			"candidates", choice.Candidates,
		)
	}

	if n := len(out.Missing); n > 0 {
		c.metrics.MissingWords.Add(ctx, int64(n))
	}
	out.finish()
	c.metrics.ComposeDuration.Record(ctx, time.Since(start).Seconds())

	if len(out.Words) == 0 {
		err := &EmptyCompositionError{Missing: out.Missing}
		observe.EndSpan(span, err)
		return out, err
	}
	span.End()
	return out, nil
}

// finish derives the text, duration and usage summaries.
func (s *Sentence) finish() {
	texts := make([]string, len(s.Words))
	speakers := make(map[string]struct{})
	files := make(map[string]struct{})
	var total float64
	for i, w := range s.Words {
		texts[i] = w.Surface
		speakers[w.Speaker] = struct{}{}
		files[w.FileName] = struct{}{}
		total += w.Duration
	}
	if n := len(s.Words); n > 1 {
		total += s.Gap.Seconds() * float64(n-1)
	}
	s.Text = strings.Join(texts, " ")
	s.TotalDuration = total
	s.SpeakersUsed = sortedKeys(speakers)
	s.FilesUsed = sortedKeys(files)
}

func sortedKeys(m map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(m))
}

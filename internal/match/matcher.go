// Package match implements the multi-tier word search over a [corpus.Index].
//
// A search applies four tiers in order and stops at the first one that yields
// any candidate; tiers are never merged:
//
//  1. Exact: the canonical key equals the normalised term.
//  2. Morphological: for terms of at least three characters, keys that start
//     or end with the term (conjugations, compounds). Prefix matches come
//     first in the pool, then suffix-only matches.
//  3. Fuzzy: keys are shortlisted with a coarse Jaro-Winkler score (≥ 0.90,
//     best three keys) and each shortlisted key is re-verified with a
//     Levenshtein similarity ratio (≥ 0.85).
//  4. Short word: for terms of at most three characters, keys whose length
//     differs by at most one and whose aligned characters differ in at most
//     one position.
//
// Within a tier, candidates are ranked by confidence, descending, with a
// stable sort so that equal confidences keep first-seen (index scan) order.
package match

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/mixplay/pkg/corpus"
)

const (
	defaultCoarseThreshold = 0.90
	defaultFineThreshold   = 0.85
	defaultShortlist       = 3

	// morphMinLen is the minimum term length for the morphological tier.
	morphMinLen = 3

	// shortWordMaxLen is the maximum term length for the short-word tier.
	shortWordMaxLen = 3
)

// Tier identifies which search tier produced a result.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierMorphological
	TierFuzzy
	TierShortWord
)

// String returns the tier name used in logs and metrics.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierMorphological:
		return "morphological"
	case TierFuzzy:
		return "fuzzy"
	case TierShortWord:
		return "short_word"
	default:
		return "none"
	}
}

// Result is a ranked search outcome.
type Result struct {
	// Term is the normalised search term.
	Term string

	// Tier is the tier that produced Occurrences, or [TierNone].
	Tier Tier

	// Occurrences are ranked by confidence, descending.
	Occurrences []corpus.Occurrence
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithCoarseThreshold sets the minimum Jaro-Winkler score for a key to enter
// the fuzzy shortlist. Default: 0.90.
func WithCoarseThreshold(v float64) Option {
	return func(m *Matcher) { m.coarse = v }
}

// WithFineThreshold sets the minimum Levenshtein similarity a shortlisted key
// must reach to be accepted. Default: 0.85.
func WithFineThreshold(v float64) Option {
	return func(m *Matcher) { m.fine = v }
}

// WithShortlist sets how many of the closest keys the fuzzy tier re-verifies.
// Default: 3.
func WithShortlist(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.shortlist = n
		}
	}
}

// Matcher searches an index. It is read-only after construction and safe for
// concurrent use.
type Matcher struct {
	idx       *corpus.Index
	coarse    float64
	fine      float64
	shortlist int
}

// New returns a [Matcher] over idx.
func New(idx *corpus.Index, opts ...Option) *Matcher {
	m := &Matcher{
		idx:       idx,
		coarse:    defaultCoarseThreshold,
		fine:      defaultFineThreshold,
		shortlist: defaultShortlist,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Index returns the index the matcher searches.
func (m *Matcher) Index() *corpus.Index { return m.idx }

// Search returns at most max ranked occurrences for term (max ≤ 0 means no
// limit). An empty result is a normal outcome, not an error.
func (m *Matcher) Search(term string, max int) []corpus.Occurrence {
	return m.SearchTier(term, max).Occurrences
}

// SearchTier is like [Matcher.Search] but also reports the tier that fired.
func (m *Matcher) SearchTier(term string, max int) Result {
	key := corpus.Normalize(term)
	res := Result{Term: key}
	if key == "" {
		return res
	}

	tiers := []struct {
		tier Tier
		run  func(string) []corpus.Occurrence
	}{
		{TierExact, m.exact},
		{TierMorphological, m.morphological},
		{TierFuzzy, m.fuzzy},
		{TierShortWord, m.shortWord},
	}
	for _, t := range tiers {
		if pool := t.run(key); len(pool) > 0 {
			res.Tier = t.tier
			res.Occurrences = rank(pool, max)
			return res
		}
	}
	return res
}

func (m *Matcher) exact(key string) []corpus.Occurrence {
	return m.idx.Lookup(key)
}

func (m *Matcher) morphological(key string) []corpus.Occurrence {
	if utf8.RuneCountInString(key) < morphMinLen {
		return nil
	}
	var prefix, suffix []corpus.Occurrence
	for _, k := range m.idx.Keys() {
		switch {
		case strings.HasPrefix(k, key):
			prefix = append(prefix, m.idx.Lookup(k)...)
		case strings.HasSuffix(k, key):
			suffix = append(suffix, m.idx.Lookup(k)...)
		}
	}
	return append(prefix, suffix...)
}

func (m *Matcher) fuzzy(key string) []corpus.Occurrence {
	type scored struct {
		key   string
		score float64
	}
	var near []scored
	for _, k := range m.idx.Keys() {
		if s := matchr.JaroWinkler(key, k, false); s >= m.coarse {
			near = append(near, scored{key: k, score: s})
		}
	}
	slices.SortStableFunc(near, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(near) > m.shortlist {
		near = near[:m.shortlist]
	}

	var pool []corpus.Occurrence
	for _, c := range near {
		if Similarity(key, c.key) >= m.fine {
			pool = append(pool, m.idx.Lookup(c.key)...)
		}
	}
	return pool
}

func (m *Matcher) shortWord(key string) []corpus.Occurrence {
	term := []rune(key)
	if len(term) > shortWordMaxLen {
		return nil
	}
	var pool []corpus.Occurrence
	for _, k := range m.idx.Keys() {
		cand := []rune(k)
		if abs(len(cand)-len(term)) > 1 {
			continue
		}
		if alignedMismatches(term, cand) <= 1 {
			pool = append(pool, m.idx.Lookup(k)...)
		}
	}
	return pool
}

// Similarity returns the normalised Levenshtein similarity of a and b in
// [0, 1]: one minus the edit distance divided by the longer rune length.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// alignedMismatches counts differing runes position by position over the
// shorter of the two inputs.
func alignedMismatches(a, b []rune) int {
	n := min(len(a), len(b))
	d, err := matchr.Hamming(string(a[:n]), string(b[:n]))
	if err != nil {
		// Equal rune counts by construction; treat as a full mismatch.
		return n
	}
	return d
}

// rank sorts pool by confidence (descending, stable) and truncates to max.
func rank(pool []corpus.Occurrence, max int) []corpus.Occurrence {
	slices.SortStableFunc(pool, func(a, b corpus.Occurrence) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if max > 0 && len(pool) > max {
		pool = pool[:max]
	}
	return pool
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

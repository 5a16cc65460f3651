package compose

import (
	"fmt"
	"slices"

	"github.com/MrWong99/mixplay/internal/match"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

const (
	// DefaultCandidateCap bounds how many ranked candidates the selector
	// asks the matcher for.
	DefaultCandidateCap = 50

	// DefaultDamping is the diversity damping constant k in the bonus
	// 1 / (1 + usage*k).
	DefaultDamping = 0.3
)

// errBelowConfidence is reported when candidates exist but none reaches the
// minimum confidence.
var errBelowConfidence = fmt.Errorf("%w: no candidate reaches the minimum confidence", ErrNotFound)

// Searcher is the part of [match.Matcher] the selector depends on.
type Searcher interface {
	SearchTier(term string, limit int) match.Result
}

// Compile-time interface check.
var _ Searcher = (*match.Matcher)(nil)

// Choice is the outcome of a successful selection.
type Choice struct {
	Occurrence corpus.Occurrence

	// Tier is the search tier the candidates came from.
	Tier match.Tier

	// Candidates is the size of the pool after filtering.
	Candidates int

	// Score is confidence multiplied by the diversity bonus.
	Score float64
}

// SelectorOption configures a [Selector].
type SelectorOption func(*Selector)

// WithCandidateCap overrides [DefaultCandidateCap].
func WithCandidateCap(n int) SelectorOption {
	return func(s *Selector) {
		if n > 0 {
			s.cap = n
		}
	}
}

// WithDamping overrides [DefaultDamping].
func WithDamping(k float64) SelectorOption {
	return func(s *Selector) {
		if k >= 0 {
			s.damping = k
		}
	}
}

// Selector picks one occurrence per word, trading confidence against reuse
// of the same source and speaker within a composition.
type Selector struct {
	search  Searcher
	cap     int
	damping float64
}

// NewSelector returns a [Selector] over search.
func NewSelector(search Searcher, opts ...SelectorOption) *Selector {
	s := &Selector{search: search, cap: DefaultCandidateCap, damping: DefaultDamping}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Bonus returns the diversity bonus for a pair used count times.
func (s *Selector) Bonus(count int) float64 {
	return 1 / (1 + float64(count)*s.damping)
}

// Select chooses the best occurrence for term.
//
// Candidates below minConf are dropped. When preferred is non-empty and at
// least one candidate is spoken by a preferred speaker, the pool is narrowed
// to those. With a non-empty ledger each candidate is scored by confidence
// times [Selector.Bonus] of its pair's usage; otherwise (nil or empty
// ledger) the most confident candidate wins. Ties fall back to confidence,
// then first-seen order. The ledger is only read; recording the choice is
// up to the caller.
//
// The returned error wraps [ErrNotFound] when nothing is selectable.
func (s *Selector) Select(term string, ledger *Ledger, minConf float64, preferred []string) (Choice, error) {
	res := s.search.SearchTier(term, s.cap)
	if len(res.Occurrences) == 0 {
		return Choice{Tier: res.Tier}, ErrNotFound
	}

	pool := make([]corpus.Occurrence, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		if occ.Confidence >= minConf {
			pool = append(pool, occ)
		}
	}
	if len(pool) == 0 {
		return Choice{Tier: res.Tier}, errBelowConfidence
	}

	if len(preferred) > 0 {
		var narrowed []corpus.Occurrence
		for _, occ := range pool {
			if slices.Contains(preferred, occ.Speaker) {
				narrowed = append(narrowed, occ)
			}
		}
		if len(narrowed) > 0 {
			pool = narrowed
		}
	}

	diverse := ledger != nil && !ledger.Empty()
	best, bestScore := 0, -1.0
	for i, occ := range pool {
		score := occ.Confidence
		if diverse {
			score *= s.Bonus(ledger.Count(KeyOf(occ)))
		}
		if score > bestScore || (score == bestScore && occ.Confidence > pool[best].Confidence) {
			best, bestScore = i, score
		}
	}
	return Choice{
		Occurrence: pool[best],
		Tier:       res.Tier,
		Candidates: len(pool),
		Score:      bestScore,
	}, nil
}

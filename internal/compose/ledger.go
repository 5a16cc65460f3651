package compose

import (
	"maps"

	"github.com/MrWong99/mixplay/pkg/corpus"
)

// SourceKey identifies a (source, speaker) pair for diversity accounting.
type SourceKey struct {
	SourceID string
	Speaker  string
}

// KeyOf returns the ledger key of occ.
func KeyOf(occ corpus.Occurrence) SourceKey {
	return SourceKey{SourceID: occ.SourceID, Speaker: occ.Speaker}
}

// Ledger counts how often each (source, speaker) pair was selected during
// one composition. It is not safe for concurrent use; every composition
// allocates its own.
type Ledger struct {
	counts map[SourceKey]int
	total  int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{counts: make(map[SourceKey]int)}
}

// Count returns the usage count of k.
func (l *Ledger) Count(k SourceKey) int { return l.counts[k] }

// Use increments the usage count of the pair that produced occ.
func (l *Ledger) Use(occ corpus.Occurrence) {
	l.counts[KeyOf(occ)]++
	l.total++
}

// Empty reports whether nothing was recorded yet.
func (l *Ledger) Empty() bool { return l.total == 0 }

// Total returns the number of recorded selections.
func (l *Ledger) Total() int { return l.total }

// Counts returns a copy of all usage counts.
func (l *Ledger) Counts() map[SourceKey]int {
	return maps.Clone(l.counts)
}

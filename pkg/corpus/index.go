package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Index maps canonical keys to every recorded [Occurrence] of that word.
//
// Buckets keep insertion order (record scan order); no ranking is implied.
// Keys are also kept in first-insertion order so that every scan over the
// vocabulary is deterministic. An Index is immutable after construction and
// safe for concurrent use.
type Index struct {
	buckets map[string][]Occurrence
	keys    []string
	total   int
	records int
	skipped int
}

// Build indexes records. Records that fail validation are logged and skipped,
// as are individual word entries with missing or invalid fields; neither ever
// aborts the build.
func Build(records []Record) *Index {
	idx := &Index{buckets: make(map[string][]Occurrence)}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			slog.Warn("corpus: skipping record", "origin", r.Origin, "err", err)
			idx.skipped++
			continue
		}
		idx.records++
		idx.addRecord(r)
	}
	return idx
}

// BuildFrom loads every record from src and indexes it with [Build].
func BuildFrom(ctx context.Context, src Source) (*Index, error) {
	records, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("corpus: load records: %w", err)
	}
	idx := Build(records)
	slog.Info("corpus indexed",
		"records", idx.records,
		"skipped_records", idx.skipped,
		"occurrences", idx.total,
		"unique_words", len(idx.keys),
	)
	return idx, nil
}

func (idx *Index) addRecord(r Record) {
	dropped := 0
	for _, seg := range r.Segments {
		for _, w := range seg.Words {
			key := Normalize(w.Text)
			if key == "" {
				continue
			}
			occ, err := w.occurrence(r, seg, key)
			if err != nil {
				dropped++
				slog.Debug("corpus: skipping word entry", "source", r.ID, "segment", seg.ID, "err", err)
				continue
			}
			if _, ok := idx.buckets[key]; !ok {
				idx.keys = append(idx.keys, key)
			}
			idx.buckets[key] = append(idx.buckets[key], occ)
			idx.total++
		}
	}
	if dropped > 0 {
		slog.Warn("corpus: dropped malformed word entries", "source", r.ID, "count", dropped)
	}
}

// Lookup returns a copy of the bucket for key, or nil when the key is not
// indexed. key must already be canonical.
func (idx *Index) Lookup(key string) []Occurrence {
	return slices.Clone(idx.buckets[key])
}

// Contains reports whether key has at least one occurrence.
func (idx *Index) Contains(key string) bool {
	_, ok := idx.buckets[key]
	return ok
}

// Keys returns every indexed key in first-insertion order.
func (idx *Index) Keys() []string {
	return slices.Clone(idx.keys)
}

// Len returns the number of distinct keys.
func (idx *Index) Len() int { return len(idx.keys) }

// Occurrences returns the total number of indexed occurrences.
func (idx *Index) Occurrences() int { return idx.total }

// Records returns the number of records that contributed to the index.
func (idx *Index) Records() int { return idx.records }

// Skipped returns the number of records rejected during the build.
func (idx *Index) Skipped() int { return idx.skipped }

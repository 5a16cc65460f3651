package corpus

import (
	"cmp"
	"slices"
)

// KeyCount pairs a canonical key with its occurrence count.
type KeyCount struct {
	Key   string `json:"word"`
	Count int    `json:"count"`
}

// Stats summarises an [Index].
type Stats struct {
	TotalWords        int            `json:"total_words"`
	UniqueWords       int            `json:"unique_words"`
	AverageConfidence float64        `json:"average_confidence"`
	Speakers          map[string]int `json:"speakers"`
	Files             map[string]int `json:"files"`
	MostCommon        []KeyCount     `json:"most_common_words"`
}

// Stats computes corpus statistics. top bounds the length of
// [Stats.MostCommon]; ties keep first-insertion order.
func (idx *Index) Stats(top int) Stats {
	st := Stats{
		TotalWords:  idx.total,
		UniqueWords: len(idx.keys),
		Speakers:    make(map[string]int),
		Files:       make(map[string]int),
	}

	var confSum float64
	counts := make([]KeyCount, 0, len(idx.keys))
	for _, key := range idx.keys {
		bucket := idx.buckets[key]
		counts = append(counts, KeyCount{Key: key, Count: len(bucket)})
		for _, o := range bucket {
			st.Speakers[o.Speaker]++
			st.Files[o.FileName]++
			confSum += o.Confidence
		}
	}
	if idx.total > 0 {
		st.AverageConfidence = confSum / float64(idx.total)
	}

	slices.SortStableFunc(counts, func(a, b KeyCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if top >= 0 && len(counts) > top {
		counts = counts[:top]
	}
	st.MostCommon = counts
	return st
}

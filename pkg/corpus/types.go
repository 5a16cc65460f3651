// Package corpus holds the word-level view of a transcript collection: the
// canonical-key [Normalize] function, the transcript [Record] schema consumed
// from the ASR and diarization pipeline, and the immutable [Index] that maps
// canonical keys to every recorded [Occurrence] of a word.
//
// An Index is built once per session with [Build] (or [BuildFrom] for a
// [Source]) and never mutated afterwards, so any number of goroutines may read
// it concurrently. Rebuilding means constructing a new Index from scratch.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// UnknownSpeaker is the speaker label used when neither the word entry nor its
// segment carries one.
const UnknownSpeaker = "unknown"

// Occurrence is one concrete recorded instance of a word with full provenance.
// Occurrences are owned by the [Index] and must be treated as read-only.
type Occurrence struct {
	// Surface is the token text as transcribed.
	Surface string `json:"word"`

	// Key is the canonical comparison key produced by [Normalize].
	Key string `json:"cleaned_word"`

	// Start and End are offsets into the audio file, in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Duration is End-Start rounded to the millisecond.
	Duration float64 `json:"duration"`

	// Confidence is the ASR-reported word probability in [0, 1].
	Confidence float64 `json:"confidence"`

	// Speaker is the diarization label; [UnknownSpeaker] when absent.
	Speaker string `json:"speaker"`

	// SourceID identifies the owning transcript record.
	SourceID string `json:"source_id"`

	// FileName is the display name of the recorded audio file.
	FileName string `json:"file_name"`

	// SegmentID is the index of the parent utterance within the source.
	SegmentID int `json:"segment_id"`

	// AudioPath locates the recorded audio containing this occurrence.
	AudioPath string `json:"audio_path"`
}

// Record is a single transcript as produced by the ASR and diarization
// pipeline. Any backend able to produce this shape can feed the indexer.
type Record struct {
	// ID is stable for the lifetime of a session and is used as the
	// occurrence SourceID.
	ID string

	// FileName is the display name of the audio file (e.g. "interview.wav").
	FileName string

	// AudioPath points at the recorded audio file.
	AudioPath string

	// Origin describes where the record came from (file path, table row) and
	// is only used in diagnostics.
	Origin string

	Segments []Segment
}

// Segment is one diarized utterance inside a [Record].
type Segment struct {
	ID      int
	Speaker string
	Words   []WordEntry
}

// WordEntry is one word-level ASR result. Pointer fields distinguish a missing
// value from a zero value; entries with missing fields are skipped.
type WordEntry struct {
	Text       string
	Start      *float64
	End        *float64
	Confidence *float64

	// Speaker overrides the segment speaker when set.
	Speaker string
}

// Source is anything that produces transcript records. Implementations must
// skip (and log) records they cannot parse rather than fail the whole load;
// a returned error means the source as a whole is unusable.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// ErrMalformedRecord is wrapped by [Record.Validate] failures.
var ErrMalformedRecord = errors.New("corpus: malformed record")

// ErrMalformedWord is wrapped by word-entry validation failures.
var ErrMalformedWord = errors.New("corpus: malformed word entry")

// Validate checks the record-level fields the indexer depends on.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if r.AudioPath == "" {
		return fmt.Errorf("%w: %s: missing audio path", ErrMalformedRecord, r.ID)
	}
	return nil
}

// occurrence validates w and turns it into an Occurrence for the given key.
func (w WordEntry) occurrence(r Record, seg Segment, key string) (Occurrence, error) {
	switch {
	case w.Start == nil:
		return Occurrence{}, fmt.Errorf("%w: %q: missing start", ErrMalformedWord, w.Text)
	case w.End == nil:
		return Occurrence{}, fmt.Errorf("%w: %q: missing end", ErrMalformedWord, w.Text)
	case w.Confidence == nil:
		return Occurrence{}, fmt.Errorf("%w: %q: missing confidence", ErrMalformedWord, w.Text)
	}
	start, end, conf := *w.Start, *w.End, *w.Confidence
	if math.IsNaN(start) || math.IsNaN(end) || start < 0 || end < start {
		return Occurrence{}, fmt.Errorf("%w: %q: invalid timing [%g, %g]", ErrMalformedWord, w.Text, start, end)
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return Occurrence{}, fmt.Errorf("%w: %q: confidence %g out of range", ErrMalformedWord, w.Text, conf)
	}

	speaker := w.Speaker
	if speaker == "" {
		speaker = seg.Speaker
	}
	if speaker == "" {
		speaker = UnknownSpeaker
	}

	return Occurrence{
		Surface:    w.Text,
		Key:        key,
		Start:      start,
		End:        end,
		Duration:   roundMillis(end - start),
		Confidence: conf,
		Speaker:    speaker,
		SourceID:   r.ID,
		FileName:   r.FileName,
		SegmentID:  seg.ID,
		AudioPath:  r.AudioPath,
	}, nil
}

// roundMillis rounds seconds to the nearest millisecond.
func roundMillis(sec float64) float64 {
	return math.Round(sec*1000) / 1000
}

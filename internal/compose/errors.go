package compose

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a requested word without any match across all search
// tiers. It is reported per word in [Sentence.Missing] and never returned
// from [Composer.Compose] on its own.
var ErrNotFound = errors.New("compose: word not found")

// ErrEmptyComposition is matched (via [errors.Is]) by the error returned when
// none of the requested words could be found.
var ErrEmptyComposition = errors.New("compose: no requested word found")

// MissingWord describes one requested word that produced no selection.
type MissingWord struct {
	// Position is the word's index in the requested list.
	Position int `json:"position"`

	// Word is the word as requested.
	Word string `json:"word"`

	// Reason is "not_found" when no tier matched or "below_confidence" when
	// candidates existed but none passed the confidence filter.
	Reason string `json:"reason"`
}

// Error implements error so a MissingWord can travel through error chains.
func (m MissingWord) Error() string {
	return fmt.Sprintf("compose: %q (position %d): %s", m.Word, m.Position, m.Reason)
}

// Unwrap returns [ErrNotFound].
func (m MissingWord) Unwrap() error { return ErrNotFound }

// EmptyCompositionError is returned by [Composer.Compose] when zero words
// were selected. Callers must not attempt assembly.
type EmptyCompositionError struct {
	Missing []MissingWord
}

func (e *EmptyCompositionError) Error() string {
	words := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		words[i] = m.Word
	}
	return fmt.Sprintf("compose: no requested word found (%s)", strings.Join(words, ", "))
}

// Is reports whether target is [ErrEmptyComposition].
func (e *EmptyCompositionError) Is(target error) bool {
	return target == ErrEmptyComposition
}

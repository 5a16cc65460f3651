package assemble

import (
	"errors"
	"fmt"

	"github.com/MrWong99/mixplay/pkg/corpus"
)

var (
	// ErrDecode marks a failure to load the audio behind a selected word.
	// It aborts the whole render.
	ErrDecode = errors.New("assemble: decode failed")

	// ErrEmptySlice is the cause of a [*DecodeError] when a word's time
	// range holds no audio in its file.
	ErrEmptySlice = errors.New("assemble: word lies outside its audio file")

	// ErrNoWords is returned when asked to render an empty sentence.
	ErrNoWords = errors.New("assemble: no words to render")
)

// DecodeError reports which word's audio could not be loaded or cut.
type DecodeError struct {
	// Position is the index of the word within the rendered sentence.
	Position   int
	Occurrence corpus.Occurrence
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("assemble: decode %s for word %d (%q): %v",
		e.Occurrence.AudioPath, e.Position, e.Occurrence.Surface, e.Err)
}

// Unwrap exposes both [ErrDecode] and the underlying cause.
func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

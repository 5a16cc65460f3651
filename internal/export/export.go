// Package export writes the JSON description of a composed sentence and,
// when it was rendered, of its audio.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

// Info is the exported document.
type Info struct {
	Metadata Metadata              `json:"metadata"`
	Words    []corpus.Occurrence   `json:"words"`
	Missing  []compose.MissingWord `json:"missing,omitempty"`
	Render   *RenderInfo           `json:"render,omitempty"`
}

// Metadata summarises the sentence.
type Metadata struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	TotalDuration  float64   `json:"total_duration"`
	SpeakersUsed   []string  `json:"speakers_used"`
	FilesUsed      []string  `json:"files_used"`
	WordsCount     int       `json:"words_count"`
	Reused         int       `json:"reused"`
	GenerationDate time.Time `json:"generation_date"`
}

// RenderInfo describes rendered audio.
type RenderInfo struct {
	Mode             string  `json:"mode"`
	AudioFile        string  `json:"audio_file,omitempty"`
	Duration         float64 `json:"duration"`
	Segments         int     `json:"segments"`
	Silence          float64 `json:"silence"`
	Crossfade        float64 `json:"crossfade"`
	Spacing          float64 `json:"spacing"`
	StretchFallbacks int     `json:"stretch_fallbacks"`
	SampleRate       int     `json:"sample_rate"`
	Channels         int     `json:"channels"`
}

// Option adjusts an [Info] built by [New].
type Option func(*Info)

// WithRender attaches a render report. audioFile may be empty.
func WithRender(r *assemble.Render, audioFile string) Option {
	return func(i *Info) {
		if r == nil {
			return
		}
		i.Render = &RenderInfo{
			Mode:             r.Mode.String(),
			AudioFile:        audioFile,
			Duration:         r.Duration().Seconds(),
			Segments:         r.Segments,
			Silence:          r.Silence.Seconds(),
			Crossfade:        r.Crossfade.Seconds(),
			Spacing:          r.Spacing.Seconds(),
			StretchFallbacks: r.StretchFallbacks,
			SampleRate:       r.Audio.SampleRate,
			Channels:         r.Audio.Channels,
		}
	}
}

// WithID sets the document id. Default: a random UUID.
func WithID(id string) Option {
	return func(i *Info) { i.Metadata.ID = id }
}

// WithTime sets the generation date. Default: now.
func WithTime(t time.Time) Option {
	return func(i *Info) { i.Metadata.GenerationDate = t }
}

// New describes s.
func New(s *compose.Sentence, opts ...Option) Info {
	info := Info{
		Metadata: Metadata{
			ID:             uuid.NewString(),
			Text:           s.Text,
			TotalDuration:  s.TotalDuration,
			SpeakersUsed:   nonNil(s.SpeakersUsed),
			FilesUsed:      nonNil(s.FilesUsed),
			WordsCount:     len(s.Words),
			Reused:         s.Reused,
			GenerationDate: time.Now().UTC(),
		},
		Words:   s.Words,
		Missing: s.Missing,
	}
	if info.Words == nil {
		info.Words = []corpus.Occurrence{}
	}
	for _, o := range opts {
		o(&info)
	}
	return info
}

// Write encodes info as indented JSON.
func Write(w io.Writer, info Info) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}

// WriteFile writes info to path, creating parent directories.
func WriteFile(path string, info Info) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: close %s: %w", path, cerr)
		}
	}()
	return Write(f, info)
}

// Read decodes a document written by [Write].
func Read(r io.Reader) (Info, error) {
	var info Info
	if err := json.NewDecoder(r).Decode(&info); err != nil {
		return Info{}, fmt.Errorf("export: decode: %w", err)
	}
	return info, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

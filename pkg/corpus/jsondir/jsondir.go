// Package jsondir implements [corpus.Source] over a directory of JSON
// transcript files as written by the transcription pipeline
// ("<name>_complete.json").
//
// Each file carries a metadata block naming the recorded audio and a list of
// diarized segments with word-level timing:
//
//	{
//	  "metadata": {"file": "interview.wav", "path": "/data/interview.wav"},
//	  "transcription": {"segments": [
//	    {"id": 0, "speaker": "SPEAKER_00", "words": [
//	      {"word": "Bonjour", "start": 0.52, "end": 0.91, "confidence": 0.95}
//	    ]}
//	  ]}
//	}
//
// Files that fail to parse are logged and skipped.
package jsondir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mixplay/pkg/corpus"
)

// DefaultPattern matches the transcript files produced by the pipeline.
const DefaultPattern = "*_complete.json"

// ErrNoTranscripts is returned by [Source.Load] when the directory holds no
// file matching the pattern.
var ErrNoTranscripts = errors.New("jsondir: no transcript files found")

// Compile-time interface check.
var _ corpus.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*Source)

// WithPattern overrides the glob used to select transcript files.
// Default: [DefaultPattern].
func WithPattern(pattern string) Option {
	return func(s *Source) {
		if pattern != "" {
			s.pattern = pattern
		}
	}
}

// WithAudioDir sets the directory used to resolve relative or missing audio
// paths. Default: the transcript directory.
func WithAudioDir(dir string) Option {
	return func(s *Source) {
		s.audioDir = dir
	}
}

// WithConcurrency bounds the number of files parsed in parallel.
// Default: GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Source reads transcript records from a directory.
type Source struct {
	dir         string
	pattern     string
	audioDir    string
	concurrency int
}

// New returns a [Source] reading from dir.
func New(dir string, opts ...Option) *Source {
	s := &Source{
		dir:         dir,
		pattern:     DefaultPattern,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(s)
	}
	if s.audioDir == "" {
		s.audioDir = dir
	}
	return s
}

// Dir returns the transcript directory.
func (s *Source) Dir() string { return s.dir }

// Pattern returns the glob selecting transcript files.
func (s *Source) Pattern() string { return s.pattern }

// Files lists the transcript files in lexical order.
func (s *Source) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, s.pattern))
	if err != nil {
		return nil, fmt.Errorf("jsondir: glob %q: %w", s.pattern, err)
	}
	return files, nil
}

// Load implements [corpus.Source]. Records are returned in file order
// regardless of parse concurrency.
func (s *Source) Load(ctx context.Context) ([]corpus.Record, error) {
	if _, err := os.Stat(s.dir); err != nil {
		return nil, fmt.Errorf("jsondir: %w", err)
	}
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s (pattern %q)", ErrNoTranscripts, s.dir, s.pattern)
	}

	parsed := make([]*corpus.Record, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := s.parseFile(path)
			if err != nil {
				slog.Warn("jsondir: skipping transcript", "file", path, "err", err)
				return nil
			}
			parsed[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]corpus.Record, 0, len(parsed))
	for _, r := range parsed {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, nil
}

// transcriptFile mirrors the on-disk JSON layout.
type transcriptFile struct {
	Metadata struct {
		File string `json:"file"`
		Path string `json:"path"`
	} `json:"metadata"`
	Transcription *struct {
		Segments []struct {
			ID      int    `json:"id"`
			Speaker string `json:"speaker"`
			Words   []struct {
				Word       *string  `json:"word"`
				Start      *float64 `json:"start"`
				End        *float64 `json:"end"`
				Confidence *float64 `json:"confidence"`
				Speaker    string   `json:"speaker"`
			} `json:"words"`
		} `json:"segments"`
	} `json:"transcription"`
}

func (s *Source) parseFile(path string) (corpus.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return corpus.Record{}, err
	}
	var tf transcriptFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return corpus.Record{}, fmt.Errorf("decode: %w", err)
	}
	if tf.Transcription == nil {
		return corpus.Record{}, errors.New("missing transcription block")
	}

	rec := corpus.Record{
		ID:        recordID(path, tf.Metadata.File),
		FileName:  tf.Metadata.File,
		AudioPath: s.resolveAudio(tf.Metadata.Path, tf.Metadata.File),
		Origin:    path,
	}
	if rec.FileName == "" {
		rec.FileName = filepath.Base(rec.AudioPath)
	}

	rec.Segments = make([]corpus.Segment, 0, len(tf.Transcription.Segments))
	for _, seg := range tf.Transcription.Segments {
		out := corpus.Segment{ID: seg.ID, Speaker: seg.Speaker}
		for _, w := range seg.Words {
			if w.Word == nil {
				continue
			}
			out.Words = append(out.Words, corpus.WordEntry{
				Text:       *w.Word,
				Start:      w.Start,
				End:        w.End,
				Confidence: w.Confidence,
				Speaker:    w.Speaker,
			})
		}
		rec.Segments = append(rec.Segments, out)
	}
	return rec, nil
}

// resolveAudio returns an absolute-or-as-given audio path. Relative paths and
// bare file names are resolved against the configured audio directory.
func (s *Source) resolveAudio(path, file string) string {
	switch {
	case path != "" && filepath.IsAbs(path):
		return path
	case path != "":
		return filepath.Join(s.audioDir, path)
	case file != "":
		return filepath.Join(s.audioDir, file)
	}
	return ""
}

// recordID derives the stable source identifier: the audio file stem when
// known, otherwise the transcript file stem without the "_complete" suffix.
func recordID(path, audioFile string) string {
	if audioFile != "" {
		return strings.TrimSuffix(audioFile, filepath.Ext(audioFile))
	}
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_complete")
}

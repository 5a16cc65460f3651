package export_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/export"
	"github.com/MrWong99/mixplay/pkg/audio"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

func sentence() *compose.Sentence {
	return &compose.Sentence{
		Text: "bonjour à",
		Words: []corpus.Occurrence{
			{Surface: "Bonjour", Key: "bonjour", Start: 0.5, End: 0.9, Duration: 0.4, Confidence: 0.95, Speaker: "SPEAKER_00", SourceID: "interview", FileName: "interview.wav"},
			{Surface: "à", Key: "a", Start: 1.0, End: 1.1, Duration: 0.1, Confidence: 0.8, Speaker: "SPEAKER_01", SourceID: "interview", FileName: "interview.wav"},
		},
		TotalDuration: 1.0,
		SpeakersUsed:  []string{"SPEAKER_00", "SPEAKER_01"},
		FilesUsed:     []string{"interview.wav"},
		Missing:       []compose.MissingWord{{Position: 2, Word: "tous", Reason: compose.ReasonNotFound}},
	}
}

func TestNew_Metadata(t *testing.T) {
	t.Parallel()

	when := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	info := export.New(sentence(), export.WithID("fixed"), export.WithTime(when))

	md := info.Metadata
	if md.ID != "fixed" || !md.GenerationDate.Equal(when) {
		t.Errorf("id=%q date=%v", md.ID, md.GenerationDate)
	}
	if md.Text != "bonjour à" || md.WordsCount != 2 || md.TotalDuration != 1.0 {
		t.Errorf("metadata = %+v", md)
	}
	if len(info.Missing) != 1 || info.Render != nil {
		t.Errorf("missing=%v render=%v", info.Missing, info.Render)
	}
}

func TestNew_DefaultID(t *testing.T) {
	t.Parallel()

	a := export.New(sentence())
	b := export.New(sentence())
	if a.Metadata.ID == "" || a.Metadata.ID == b.Metadata.ID {
		t.Errorf("ids %q and %q should be distinct and non-empty", a.Metadata.ID, b.Metadata.ID)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	t.Parallel()

	r := &assemble.Render{
		Audio:    audio.Silence(audio.Format{SampleRate: 16000, Channels: 1}, 2*time.Second),
		Mode:     assemble.ModeSeamless,
		Segments: 2,
		Silence:  100 * time.Millisecond,
		Spacing:  130 * time.Millisecond,
	}
	info := export.New(sentence(), export.WithRender(r, "out.wav"))

	var buf bytes.Buffer
	if err := export.Write(&buf, info); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), `"text": "bonjour à"`) {
		t.Errorf("non-ASCII text escaped or missing:\n%s", buf.String())
	}

	got, err := export.Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Render == nil || got.Render.Mode != "seamless" || got.Render.Duration != 2 || got.Render.AudioFile != "out.wav" {
		t.Errorf("render = %+v", got.Render)
	}
	if len(got.Words) != 2 || got.Words[1].Key != "a" {
		t.Errorf("words = %+v", got.Words)
	}
}

func TestWrite_EmptyListsEncodeAsArrays(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := export.Write(&buf, export.New(&compose.Sentence{})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, want := range []string{`"words": []`, `"speakers_used": []`, `"files_used": []`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output lacks %s:\n%s", want, buf.String())
		}
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "info.json")
	if err := export.WriteFile(path, export.New(sentence())); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := export.Read(f); err != nil {
		t.Errorf("Read: %v", err)
	}
}

package app_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/config"
	"github.com/MrWong99/mixplay/internal/export"
	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/pkg/audio"
	"github.com/MrWong99/mixplay/pkg/audio/wav"
	"github.com/MrWong99/mixplay/pkg/corpus"
	"github.com/MrWong99/mixplay/pkg/corpus/jsondir"
)

const transcriptTemplate = `{
  "metadata": {"file": %q},
  "transcription": {"segments": [
    {"id": 0, "speaker": %q, "words": [
      {"word": %q, "start": 0.5, "end": 1.0, "confidence": 0.9},
      {"word": %q, "start": 1.5, "end": 2.0, "confidence": 0.8}
    ]}
  ]}
}`

// writeSource writes a 3 s tone named name.wav and a transcript saying the
// two words.
func writeSource(t *testing.T, dir, name, speaker, w1, w2 string) {
	t.Helper()
	f := audio.Format{SampleRate: 16000, Channels: 1}
	b := audio.Buffer{Format: f, Samples: make([]float32, 3*f.SampleRate)}
	for i := range b.Samples {
		b.Samples[i] = float32(0.4 * math.Sin(2*math.Pi*220*float64(i)/float64(f.SampleRate)))
	}
	if err := wav.WriteFile(filepath.Join(dir, name+".wav"), b, 16); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	js := fmt.Sprintf(transcriptTemplate, name+".wav", speaker, w1, w2)
	if err := os.WriteFile(filepath.Join(dir, name+"_complete.json"), []byte(js), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestApp(t *testing.T, opts ...app.Option) (*app.App, string) {
	t.Helper()
	dir := t.TempDir()
	writeSource(t, dir, "interview", "SPEAKER_00", "Bonjour", "amour")

	cfg := config.Default()
	cfg.Corpus.TranscriptsDir = dir
	cfg.Server.OutputDir = filepath.Join(dir, "out")

	a, err := app.New(context.Background(), cfg, jsondir.New(dir),
		append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, dir
}

func TestNew_BuildsIndex(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	if !a.Ready() {
		t.Fatal("app not ready after New")
	}
	res, err := a.Search(context.Background(), "BONJOUR!", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Occurrences) != 1 || res.Occurrences[0].SourceID != "interview" {
		t.Errorf("search = %+v", res)
	}
	words, _ := a.Words()
	if !slices.Equal(words, []string{"amour", "bonjour"}) {
		t.Errorf("Words() = %v", words)
	}
}

func TestNew_SourceFailure(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), config.Default(), jsondir.New(filepath.Join(t.TempDir(), "missing")),
		app.WithMetrics(testMetrics(t)))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestCompose_UsesLiveIndex(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	s, err := a.Compose(context.Background(), []string{"bonjour", "amour", "zzz"}, a.ComposeOptions())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(s.Words) != 2 || len(s.Missing) != 1 {
		t.Errorf("words=%d missing=%v", len(s.Words), s.Missing)
	}
}

func TestGenerate_WritesAudioAndInfo(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	g, err := a.Generate(context.Background(), app.GenerateRequest{
		Words:   []string{"amour", "bonjour"},
		Compose: a.ComposeOptions(),
		Render:  a.RenderOptions(),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	b, err := wav.DecodeFile(g.AudioPath)
	if err != nil {
		t.Fatalf("decode generated audio: %v", err)
	}
	if b.Frames() == 0 || math.Abs(b.Duration().Seconds()-g.Duration) > 0.01 {
		t.Errorf("audio duration %v, reported %v", b.Duration(), g.Duration)
	}

	f, err := os.Open(g.InfoPath)
	if err != nil {
		t.Fatalf("open info: %v", err)
	}
	defer f.Close()
	info, err := export.Read(f)
	if err != nil {
		t.Fatalf("read info: %v", err)
	}
	if info.Metadata.ID != g.ID || info.Render == nil || info.Render.Segments != 2 {
		t.Errorf("info = %+v", info)
	}
	if info.Render.AudioFile != filepath.Base(g.AudioPath) {
		t.Errorf("audio_file = %q", info.Render.AudioFile)
	}
}

func TestGenerate_EmptyComposition(t *testing.T) {
	t.Parallel()

	a, dir := newTestApp(t)
	_, err := a.Generate(context.Background(), app.GenerateRequest{
		Words:   []string{"xyzzy"},
		Compose: a.ComposeOptions(),
		Render:  a.RenderOptions(),
	})
	if err == nil {
		t.Fatal("expected error for a sentence with no matches")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("output written for a failed generation")
	}
}

func TestGenerate_InfoFailureRemovesAudio(t *testing.T) {
	t.Parallel()

	a, dir := newTestApp(t, app.WithIDGenerator(func() string { return "fixed" }))
	out := filepath.Join(dir, "out")
	// A directory where the info file should go makes its creation fail.
	if err := os.MkdirAll(filepath.Join(out, "mix_fixed.json", "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := a.Generate(context.Background(), app.GenerateRequest{
		Words:   []string{"bonjour"},
		Compose: a.ComposeOptions(),
		Render:  a.RenderOptions(),
	})
	if err == nil {
		t.Fatal("expected error when the info file cannot be written")
	}
	if _, statErr := os.Stat(filepath.Join(out, "mix_fixed.wav")); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("audio file left behind: stat err = %v", statErr)
	}
}

func TestRandomWords(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	got, err := a.RandomWords(10)
	if err != nil {
		t.Fatalf("RandomWords: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, []string{"amour", "bonjour"}) {
		t.Errorf("RandomWords(10) = %v", got)
	}
	if got, _ := a.RandomWords(1); len(got) != 1 {
		t.Errorf("RandomWords(1) returned %d words", len(got))
	}
	if got, _ := a.RandomWords(-3); len(got) != 0 {
		t.Errorf("RandomWords(-3) returned %d words", len(got))
	}
}

func TestReload_PicksUpNewTranscripts(t *testing.T) {
	t.Parallel()

	a, dir := newTestApp(t)
	writeSource(t, dir, "podcast", "SPEAKER_01", "merci", "amour")

	res, err := a.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.Records != 2 || res.Occurrences != 4 || res.UniqueWords != 3 {
		t.Errorf("reload result = %+v", res)
	}
	if !a.Index().Contains("merci") {
		t.Error("new word not searchable after reload")
	}
}

// flakySource fails after its first load.
type flakySource struct {
	inner corpus.Source
	calls int
}

func (s *flakySource) Load(ctx context.Context) ([]corpus.Record, error) {
	s.calls++
	if s.calls > 1 {
		return nil, errors.New("transcripts unavailable")
	}
	return s.inner.Load(ctx)
}

func TestReload_FailureKeepsPreviousIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSource(t, dir, "interview", "SPEAKER_00", "Bonjour", "amour")
	a, err := app.New(context.Background(), config.Default(), &flakySource{inner: jsondir.New(dir)},
		app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := a.Index()
	if _, err := a.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if a.Index() != before {
		t.Error("failed reload replaced the live index")
	}
}

func TestWatchTranscripts_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	a, dir := newTestApp(t)
	if err := a.WatchTranscripts(context.Background(), dir, "*_complete.json", 20*time.Millisecond); err != nil {
		t.Fatalf("WatchTranscripts: %v", err)
	}
	writeSource(t, dir, "podcast", "SPEAKER_01", "merci", "amour")

	deadline := time.Now().Add(3 * time.Second)
	for !a.Index().Contains("merci") {
		if time.Now().After(deadline) {
			t.Fatal("index not reloaded after transcript change")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	a, _ := newTestApp(t, app.WithLogLevel(&level))
	old := a.Config()

	updated := *old
	updated.Server.LogLevel = config.LogDebug
	updated.Compose.MinConfidence = 0.85
	before := a.Index()
	a.ApplyConfig(old, &updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	if a.ComposeOptions().MinConfidence != 0.85 {
		t.Errorf("compose defaults not updated")
	}
	if a.Index() != before {
		t.Error("compose change should not rebuild the index")
	}
	// Only the 0.9 "bonjour" passes the new floor.
	s, err := a.Compose(context.Background(), []string{"amour"}, a.ComposeOptions())
	if err == nil || len(s.Words) != 0 {
		t.Errorf("compose with raised floor = %+v, %v", s, err)
	}
}

func TestShutdown_RunsClosersOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	a, _ := newTestApp(t, app.WithCloser(func() error { calls++; return nil }))
	for range 2 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("closer ran %d times, want 1", calls)
	}
}

func TestParseContainer(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]app.Container{"": app.ContainerWAV, "WAV": app.ContainerWAV, "dca": app.ContainerDCA} {
		if got, err := app.ParseContainer(in); err != nil || got != want {
			t.Errorf("ParseContainer(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := app.ParseContainer("mp3"); err == nil {
		t.Error("expected error for mp3")
	}
}

package mcptools_test

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/config"
	"github.com/MrWong99/mixplay/internal/mcptools"
	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/pkg/audio"
	"github.com/MrWong99/mixplay/pkg/audio/wav"
	"github.com/MrWong99/mixplay/pkg/corpus/jsondir"
)

const transcript = `{
  "metadata": {"file": "radio.wav"},
  "transcription": {"segments": [
    {"id": 0, "speaker": "SPEAKER_01", "words": [
      {"word": "Le", "start": 0.2, "end": 0.4, "confidence": 0.9},
      {"word": "coeur", "start": 0.5, "end": 1.0, "confidence": 0.95},
      {"word": "léger", "start": 1.2, "end": 1.8, "confidence": 0.85}
    ]}
  ]}
}`

// connect starts the tool server on an in-memory transport and returns a
// client session talking to it.
func connect(t *testing.T) (*mcpsdk.ClientSession, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	b := audio.Buffer{Format: f, Samples: make([]float32, 2*f.SampleRate)}
	for i := range b.Samples {
		b.Samples[i] = float32(0.3 * math.Sin(2*math.Pi*330*float64(i)/float64(f.SampleRate)))
	}
	if err := wav.WriteFile(filepath.Join(dir, "radio.wav"), b, 16); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "radio_complete.json"), []byte(transcript), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg := config.Default()
	cfg.Server.OutputDir = filepath.Join(dir, "out")
	a, err := app.New(ctx, cfg, jsondir.New(dir), app.WithMetrics(m))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	srv := mcptools.New(a, mcptools.WithMetrics(m), mcptools.WithVersion("test"))
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs, dir
}

// call invokes a tool and decodes its text content into v.
func call(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any, v any) bool {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T, want text", name, res.Content[0])
	}
	if err := json.Unmarshal([]byte(tc.Text), v); err != nil {
		t.Fatalf("CallTool(%s): decode %q: %v", name, tc.Text, err)
	}
	return res.IsError
}

func TestListTools(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{"compose_sentence", "corpus_stats", "search_word"}
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestSearchWord(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	var out mcptools.SearchOutput
	if isErr := call(t, cs, "search_word", map[string]any{"word": "LEGER"}, &out); isErr {
		t.Fatalf("unexpected tool error: %+v", out)
	}
	if out.Tier != "exact" || len(out.Occurrences) != 1 || out.Occurrences[0].Surface != "léger" {
		t.Errorf("search = %+v", out)
	}

	out = mcptools.SearchOutput{}
	call(t, cs, "search_word", map[string]any{"word": "piano"}, &out)
	if out.Tier != "none" || out.Occurrences == nil || len(out.Occurrences) != 0 {
		t.Errorf("search for unknown word = %+v, want empty list", out)
	}
}

func TestComposeSentence(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	var out struct {
		Text    string `json:"text"`
		Missing []struct {
			Word string `json:"word"`
		} `json:"missing"`
		AudioPath string `json:"audio_path"`
	}
	if isErr := call(t, cs, "compose_sentence", map[string]any{"text": "le coeur lourd"}, &out); isErr {
		t.Fatalf("unexpected tool error")
	}
	if out.Text != "Le coeur" || len(out.Missing) != 1 || out.AudioPath != "" {
		t.Errorf("compose = %+v", out)
	}
}

func TestComposeSentence_Render(t *testing.T) {
	t.Parallel()
	cs, dir := connect(t)

	var out struct {
		AudioPath string `json:"audio_path"`
		InfoPath  string `json:"info_path"`
	}
	args := map[string]any{"words": []string{"coeur", "léger"}, "render": true, "mode": "artistic"}
	if isErr := call(t, cs, "compose_sentence", args, &out); isErr {
		t.Fatalf("unexpected tool error")
	}
	if filepath.Dir(out.AudioPath) != filepath.Join(dir, "out") {
		t.Errorf("audio path = %q", out.AudioPath)
	}
	for _, p := range []string{out.AudioPath, out.InfoPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("output missing: %v", err)
		}
	}
}

func TestComposeSentence_ToolErrors(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	tests := []struct {
		name        string
		args        map[string]any
		wantMissing int
	}{
		{"no words", map[string]any{}, 0},
		{"nothing found", map[string]any{"words": []string{"piano", "violon"}}, 2},
		{"bad confidence", map[string]any{"words": []string{"coeur"}, "min_confidence": 3}, 0},
		{"bad mode", map[string]any{"words": []string{"coeur"}, "render": true, "mode": "loud"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out struct {
				Error   string `json:"error"`
				Missing []any  `json:"missing"`
			}
			if isErr := call(t, cs, "compose_sentence", tc.args, &out); !isErr {
				t.Fatalf("got success, want tool error")
			}
			if out.Error == "" || len(out.Missing) != tc.wantMissing {
				t.Errorf("error body = %+v, want %d missing", out, tc.wantMissing)
			}
		})
	}
}

func TestCorpusStats(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	var out struct {
		TotalWords int            `json:"total_words"`
		Speakers   map[string]int `json:"speakers"`
		MostCommon []any          `json:"most_common_words"`
	}
	call(t, cs, "corpus_stats", map[string]any{"top": 2}, &out)
	if out.TotalWords != 3 || out.Speakers["SPEAKER_01"] != 3 || len(out.MostCommon) != 2 {
		t.Errorf("stats = %+v", out)
	}
}

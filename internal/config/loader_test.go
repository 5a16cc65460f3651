package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/config"
	"github.com/MrWong99/mixplay/pkg/audio/stretch"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  output_dir: /tmp/renders
corpus:
  backend: jsondir
  transcripts_dir: /data/transcripts
  watch_interval: 30s
compose:
  min_confidence: 0.7
  diversity: false
  preferred_speakers: [SPEAKER_00]
  gap: 250ms
render:
  mode: artistic
  tempo: 1.25
  stretch: resample
  padding: 80ms
cache:
  size: 8
`

const fullTOML = `
[server]
listen_addr = ":9090"
log_level = "warn"

[corpus]
backend = "postgres"

[postgres]
dsn = "postgres://localhost/mixplay"

[render]
mode = "seamless"
gap = "200ms"
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Corpus.WatchInterval != 30*time.Second {
		t.Errorf("watch_interval: got %s, want 30s", cfg.Corpus.WatchInterval)
	}
	if cfg.Compose.DiversityEnabled() {
		t.Error("diversity should be disabled")
	}
	opts := cfg.Compose.Options()
	if opts.MinConfidence != 0.7 || opts.Gap != 250*time.Millisecond || len(opts.PreferredSpeakers) != 1 {
		t.Errorf("compose options = %+v", opts)
	}

	ro, err := cfg.Render.Options()
	if err != nil {
		t.Fatalf("render options: %v", err)
	}
	if ro.Mode != assemble.ModeArtistic || ro.Stretch != stretch.ModeResample || ro.Tempo != 1.25 {
		t.Errorf("render options = %+v", ro)
	}
	if ro.Padding != 80*time.Millisecond || ro.Gap != assemble.DefaultGap {
		t.Errorf("padding=%s gap=%s", ro.Padding, ro.Gap)
	}
	if cfg.Cache.Size != 8 {
		t.Errorf("cache.size: got %d, want 8", cfg.Cache.Size)
	}
}

func TestParse_TOML(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse(strings.NewReader(fullTOML), config.FormatTOML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Corpus.Backend != config.BackendPostgres || cfg.Postgres.DSN == "" {
		t.Errorf("corpus=%+v postgres=%+v", cfg.Corpus, cfg.Postgres)
	}
	if cfg.Render.Mode != "seamless" || cfg.Render.Gap != 200*time.Millisecond {
		t.Errorf("render = %+v", cfg.Render)
	}
}

func TestParse_UnknownKeysRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format config.Format
		input  string
	}{
		{"yaml", config.FormatYAML, "server:\n  listen_adr: \":1\"\n"},
		{"toml", config.FormatTOML, "[server]\nlisten_adr = \":1\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := config.Parse(strings.NewReader(tc.input), tc.format); err == nil {
				t.Fatal("expected error for unknown key, got nil")
			}
		})
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := config.Default()
	if cfg.Server.ListenAddr != want.Server.ListenAddr || cfg.Render.Gap != assemble.DefaultGap {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Compose.MinConfidence != 0.5 || cfg.Compose.Damping != 0.3 || cfg.Compose.CandidateCap != 50 {
		t.Errorf("compose defaults = %+v", cfg.Compose)
	}
	if !cfg.Compose.DiversityEnabled() {
		t.Error("diversity should default to enabled")
	}
	if cfg.Render.Format().Valid() {
		t.Error("output format should default to the first word's format")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
corpus:
  backend: s3
compose:
  min_confidence: 1.5
render:
  mode: opera
  stretch: granular
  tempo: 9
  bit_depth: 12
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{
		"server.log_level", "corpus.backend", "compose.min_confidence",
		"render.mode", "render.stretch", "render.tempo", "render.bit_depth",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("corpus:\n  backend: postgres\n"))
	if err == nil || !strings.Contains(err.Error(), "postgres.dsn") {
		t.Fatalf("error should mention postgres.dsn, got: %v", err)
	}
}

func TestValidate_FormatFieldsTogether(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("render:\n  sample_rate: 48000\n"))
	if err == nil || !strings.Contains(err.Error(), "set together") {
		t.Fatalf("error should mention sample_rate and channels, got: %v", err)
	}
}

func TestLoad_ByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "mixplay.toml")
	if err := os.WriteFile(tomlPath, []byte(fullTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(tomlPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q, want warn", cfg.Server.LogLevel)
	}

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestFormatFor(t *testing.T) {
	t.Parallel()

	tests := map[string]config.Format{
		"a.toml": config.FormatTOML,
		"A.TOML": config.FormatTOML,
		"a.yaml": config.FormatYAML,
		"a.yml":  config.FormatYAML,
		"noext":  config.FormatYAML,
	}
	for path, want := range tests {
		if got := config.FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"verbose":       slog.LevelInfo,
	}
	for in, want := range tests {
		if got := in.SlogLevel(); got != want {
			t.Errorf("LogLevel(%q).SlogLevel() = %v, want %v", in, got, want)
		}
	}
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/pkg/audio/stretch"
)

// Format identifies a config file syntax.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatTOML {
		return "toml"
	}
	return "yaml"
}

// FormatFor returns the syntax implied by path's extension. Anything other
// than .toml is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads the configuration file at path, in YAML or TOML depending on
// its extension, and returns a defaulted and validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return Parse(r, FormatYAML)
}

// Parse decodes a config in the given format, applies defaults and
// validates it. Unknown keys are rejected in both formats.
func Parse(r io.Reader, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: decode toml: unknown keys %s", strings.Join(keys, ", "))
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config holding only defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued setting that has a documented
// default. Set values are left alone.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, ":8080")
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.OutputDir, "output")
	setDefault(&cfg.Server.ShutdownTimeout, defaultShutdownTimeout)

	setDefault(&cfg.Corpus.Backend, BackendJSONDir)
	setDefault(&cfg.Corpus.Pattern, "*_complete.json")
	setDefault(&cfg.Corpus.Concurrency, 4)

	setDefault(&cfg.Match.CoarseThreshold, 0.90)
	setDefault(&cfg.Match.FineThreshold, 0.85)
	setDefault(&cfg.Match.Shortlist, 3)

	setDefault(&cfg.Compose.MinConfidence, 0.5)
	setDefault(&cfg.Compose.Gap, defaultComposeGap)
	setDefault(&cfg.Compose.CandidateCap, 50)
	setDefault(&cfg.Compose.Damping, 0.3)

	setDefault(&cfg.Render.Mode, "standard")
	setDefault(&cfg.Render.Tempo, 1)
	setDefault(&cfg.Render.Stretch, "preserve_pitch")
	setDefault(&cfg.Render.Padding, assemble.DefaultPadding)
	setDefault(&cfg.Render.Gap, assemble.DefaultGap)
	setDefault(&cfg.Render.Crossfade, assemble.DefaultCrossfade)
	setDefault(&cfg.Render.SegmentHeadroom, assemble.DefaultSegmentHeadroom)
	setDefault(&cfg.Render.FinalHeadroom, assemble.DefaultFinalHeadroom)
	setDefault(&cfg.Render.BitDepth, 16)

	setDefault(&cfg.Cache.Size, 32)
	setDefault(&cfg.Cache.Concurrency, assemble.DefaultConcurrency)

	setDefault(&cfg.Postgres.MaxConns, 4)
	setDefault(&cfg.Telemetry.ServiceName, "mixplay")
}

func setDefault[T comparable](field *T, v T) {
	var zero T
	if *field == zero {
		*field = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Corpus
	switch {
	case cfg.Corpus.Backend == "":
	case !cfg.Corpus.Backend.IsValid():
		errs = append(errs, fmt.Errorf("corpus.backend %q is invalid; valid values: jsondir, postgres", cfg.Corpus.Backend))
	case cfg.Corpus.Backend == BackendPostgres && cfg.Postgres.DSN == "":
		errs = append(errs, errors.New("postgres.dsn is required when corpus.backend is postgres"))
	}
	if cfg.Corpus.Backend == BackendJSONDir && cfg.Corpus.TranscriptsDir == "" {
		slog.Warn("corpus.transcripts_dir is empty; it must be given on the command line")
	}
	if cfg.Corpus.Backend == BackendPostgres && cfg.Corpus.WatchInterval > 0 {
		slog.Warn("corpus.watch_interval only applies to the jsondir backend; ignoring")
	}
	if cfg.Corpus.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("corpus.watch_interval %s must not be negative", cfg.Corpus.WatchInterval))
	}

	// Match
	errs = appendRange(errs, "match.coarse_threshold", cfg.Match.CoarseThreshold, 0, 1)
	errs = appendRange(errs, "match.fine_threshold", cfg.Match.FineThreshold, 0, 1)
	if cfg.Match.Shortlist < 0 {
		errs = append(errs, fmt.Errorf("match.shortlist %d must not be negative", cfg.Match.Shortlist))
	}

	// Compose
	errs = appendRange(errs, "compose.min_confidence", cfg.Compose.MinConfidence, 0, 1)
	errs = appendRange(errs, "compose.damping", cfg.Compose.Damping, 0, math.MaxFloat64)
	if cfg.Compose.Gap < 0 {
		errs = append(errs, fmt.Errorf("compose.gap %s must not be negative", cfg.Compose.Gap))
	}
	if cfg.Compose.CandidateCap < 0 {
		errs = append(errs, fmt.Errorf("compose.candidate_cap %d must not be negative", cfg.Compose.CandidateCap))
	}

	// Render
	if _, err := assemble.ParseMode(cfg.Render.Mode); err != nil {
		errs = append(errs, fmt.Errorf("render.mode %q is invalid; valid values: standard, artistic, seamless", cfg.Render.Mode))
	}
	if _, err := stretch.ParseMode(cfg.Render.Stretch); err != nil {
		errs = append(errs, fmt.Errorf("render.stretch %q is invalid; valid values: preserve_pitch, resample", cfg.Render.Stretch))
	}
	if t := cfg.Render.Tempo; t != 0 {
		errs = appendRange(errs, "render.tempo", t, stretch.MinFactor, stretch.MaxFactor)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"render.padding", cfg.Render.Padding},
		{"render.gap", cfg.Render.Gap},
		{"render.crossfade", cfg.Render.Crossfade},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s %s must not be negative", d.name, d.v))
		}
	}
	errs = appendRange(errs, "render.segment_headroom_db", cfg.Render.SegmentHeadroom, 0, 96)
	errs = appendRange(errs, "render.final_headroom_db", cfg.Render.FinalHeadroom, 0, 96)
	if (cfg.Render.SampleRate == 0) != (cfg.Render.Channels == 0) {
		errs = append(errs, errors.New("render.sample_rate and render.channels must be set together"))
	}
	if cfg.Render.SampleRate < 0 || cfg.Render.Channels < 0 {
		errs = append(errs, errors.New("render.sample_rate and render.channels must not be negative"))
	}
	switch cfg.Render.BitDepth {
	case 0, 8, 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("render.bit_depth %d is invalid; valid values: 8, 16, 24, 32", cfg.Render.BitDepth))
	}

	// Cache
	if cfg.Cache.Size < 0 || cfg.Cache.Concurrency < 0 {
		errs = append(errs, errors.New("cache.size and cache.concurrency must not be negative"))
	}

	return errors.Join(errs...)
}

// appendRange appends an error when v lies outside [lo, hi].
func appendRange(errs []error, name string, v, lo, hi float64) []error {
	if math.IsNaN(v) || v < lo || v > hi {
		if hi == math.MaxFloat64 {
			return append(errs, fmt.Errorf("%s %g must not be negative", name, v))
		}
		return append(errs, fmt.Errorf("%s %g is out of range [%g, %g]", name, v, lo, hi))
	}
	return errs
}

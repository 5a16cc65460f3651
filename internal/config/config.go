// Package config provides the configuration schema, loader, corpus backend
// registry and file watcher for mixplay.
//
// A config file is optional for every command: flags fill the same fields
// and [ApplyDefaults] supplies the rest.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto a [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Backend names a transcript corpus backend.
type Backend string

const (
	// BackendJSONDir reads *_complete.json transcripts from a directory.
	BackendJSONDir Backend = "jsondir"

	// BackendPostgres reads transcripts imported into PostgreSQL.
	BackendPostgres Backend = "postgres"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	return b == BackendJSONDir || b == BackendPostgres
}

// Config is the root configuration structure. It is typically loaded with
// [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus" toml:"corpus"`
	Match     MatchConfig     `yaml:"match" toml:"match"`
	Compose   ComposeConfig   `yaml:"compose" toml:"compose"`
	Render    RenderConfig    `yaml:"render" toml:"render"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Postgres  PostgresConfig  `yaml:"postgres" toml:"postgres"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// ServerConfig holds network, output and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls" toml:"tls"`

	// OutputDir receives rendered audio and composition exports.
	OutputDir string `yaml:"output_dir" toml:"output_dir"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// CorpusConfig selects and configures the transcript source.
type CorpusConfig struct {
	Backend Backend `yaml:"backend" toml:"backend"`

	// TranscriptsDir is the directory scanned by the jsondir backend.
	TranscriptsDir string `yaml:"transcripts_dir" toml:"transcripts_dir"`

	// Pattern is the transcript file glob. Default: *_complete.json.
	Pattern string `yaml:"pattern" toml:"pattern"`

	// AudioDir overrides where audio files are looked up.
	AudioDir string `yaml:"audio_dir" toml:"audio_dir"`

	// WatchInterval enables polling the transcript directory and rebuilding
	// the index on change. Zero disables watching.
	WatchInterval time.Duration `yaml:"watch_interval" toml:"watch_interval"`

	// Concurrency bounds parallel transcript parsing.
	Concurrency int `yaml:"concurrency" toml:"concurrency"`
}

// MatchConfig tunes the fuzzy search tier.
type MatchConfig struct {
	CoarseThreshold float64 `yaml:"coarse_threshold" toml:"coarse_threshold"`
	FineThreshold   float64 `yaml:"fine_threshold" toml:"fine_threshold"`
	Shortlist       int     `yaml:"shortlist" toml:"shortlist"`
}

// ComposeConfig holds composition defaults.
type ComposeConfig struct {
	MinConfidence float64 `yaml:"min_confidence" toml:"min_confidence"`

	// Diversity enables the usage bonus. Nil means enabled.
	Diversity *bool `yaml:"diversity" toml:"diversity"`

	PreferredSpeakers []string      `yaml:"preferred_speakers" toml:"preferred_speakers"`
	Gap               time.Duration `yaml:"gap" toml:"gap"`
	CandidateCap      int           `yaml:"candidate_cap" toml:"candidate_cap"`
	Damping           float64       `yaml:"damping" toml:"damping"`
}

// DiversityEnabled reports whether the diversity bonus is on.
func (c ComposeConfig) DiversityEnabled() bool {
	return c.Diversity == nil || *c.Diversity
}

// RenderConfig holds audio assembly defaults.
type RenderConfig struct {
	// Mode is one of standard, artistic, seamless.
	Mode string `yaml:"mode" toml:"mode"`

	// Tempo is the speed factor; 1 keeps the recorded tempo.
	Tempo float64 `yaml:"tempo" toml:"tempo"`

	// Stretch is one of preserve_pitch, resample.
	Stretch string `yaml:"stretch" toml:"stretch"`

	Padding         time.Duration `yaml:"padding" toml:"padding"`
	Gap             time.Duration `yaml:"gap" toml:"gap"`
	Crossfade       time.Duration `yaml:"crossfade" toml:"crossfade"`
	SegmentHeadroom float64       `yaml:"segment_headroom_db" toml:"segment_headroom_db"`
	FinalHeadroom   float64       `yaml:"final_headroom_db" toml:"final_headroom_db"`

	// SampleRate and Channels fix the output format. Zero keeps the format
	// of the first word's file.
	SampleRate int `yaml:"sample_rate" toml:"sample_rate"`
	Channels   int `yaml:"channels" toml:"channels"`

	// BitDepth of written WAV files.
	BitDepth int `yaml:"bit_depth" toml:"bit_depth"`
}

// CacheConfig bounds the decode cache.
type CacheConfig struct {
	// Size is the number of decoded files kept.
	Size int `yaml:"size" toml:"size"`

	// Concurrency bounds parallel decodes per render.
	Concurrency int `yaml:"concurrency" toml:"concurrency"`
}

// PostgresConfig configures the PostgreSQL corpus backend and importer.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" toml:"dsn"`
	MaxConns int32  `yaml:"max_conns" toml:"max_conns"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" toml:"service_name"`
	RuntimeMetrics bool   `yaml:"runtime_metrics" toml:"runtime_metrics"`
}

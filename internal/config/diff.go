package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CorpusChanged means the index must be rebuilt from a new source.
	CorpusChanged bool

	// MatchChanged means matchers must be recreated.
	MatchChanged bool

	// ComposeChanged and RenderChanged affect only new requests.
	ComposeChanged bool
	RenderChanged  bool

	// RestartRequired lists sections that cannot be applied at runtime.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.CorpusChanged && !d.MatchChanged &&
		!d.ComposeChanged && !d.RenderChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.CorpusChanged = old.Corpus != new.Corpus ||
		(new.Corpus.Backend == BackendPostgres && old.Postgres != new.Postgres)
	d.MatchChanged = old.Match != new.Match
	d.ComposeChanged = !composeEqual(old.Compose, new.Compose)
	d.RenderChanged = old.Render != new.Render

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func composeEqual(a, b ComposeConfig) bool {
	return a.MinConfidence == b.MinConfidence &&
		a.DiversityEnabled() == b.DiversityEnabled() &&
		slices.Equal(a.PreferredSpeakers, b.PreferredSpeakers) &&
		a.Gap == b.Gap &&
		a.CandidateCap == b.CandidateCap &&
		a.Damping == b.Damping
}

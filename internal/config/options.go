package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/match"
	"github.com/MrWong99/mixplay/pkg/audio"
	"github.com/MrWong99/mixplay/pkg/audio/stretch"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultComposeGap      = compose.DefaultGap
)

// MatcherOptions returns the fuzzy tier settings as matcher options.
func (c MatchConfig) MatcherOptions() []match.Option {
	return []match.Option{
		match.WithCoarseThreshold(c.CoarseThreshold),
		match.WithFineThreshold(c.FineThreshold),
		match.WithShortlist(c.Shortlist),
	}
}

// SelectorOptions returns the diversity settings as selector options.
func (c ComposeConfig) SelectorOptions() []compose.SelectorOption {
	return []compose.SelectorOption{
		compose.WithCandidateCap(c.CandidateCap),
		compose.WithDamping(c.Damping),
	}
}

// Options returns the per-composition defaults.
func (c ComposeConfig) Options() compose.Options {
	return compose.Options{
		MinConfidence:     c.MinConfidence,
		PreferredSpeakers: slices.Clone(c.PreferredSpeakers),
		Diversity:         c.DiversityEnabled(),
		Gap:               c.Gap,
	}
}

// Options returns the per-render defaults.
func (c RenderConfig) Options() (assemble.Options, error) {
	mode, err := assemble.ParseMode(c.Mode)
	if err != nil {
		return assemble.Options{}, fmt.Errorf("config: %w", err)
	}
	sm, err := stretch.ParseMode(c.Stretch)
	if err != nil {
		return assemble.Options{}, fmt.Errorf("config: %w", err)
	}
	return assemble.Options{
		Mode:            mode,
		Tempo:           c.Tempo,
		Stretch:         sm,
		Padding:         c.Padding,
		Gap:             c.Gap,
		Crossfade:       c.Crossfade,
		SegmentHeadroom: c.SegmentHeadroom,
		FinalHeadroom:   c.FinalHeadroom,
	}, nil
}

// Format returns the fixed output format, or the zero format when the
// first word's format should be kept.
func (c RenderConfig) Format() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

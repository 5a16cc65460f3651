package assemble

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/mixplay/pkg/audio"
)

// Mode selects how word segments are faded and joined.
type Mode int

const (
	// ModeStandard fades briefly and separates words with the full gap,
	// crossfading into each word when both sides are long enough.
	ModeStandard Mode = iota

	// ModeArtistic uses long fades and at least 400 ms crossfades, shortening
	// the gap by the crossfade so perceived spacing stays constant.
	ModeArtistic

	// ModeSeamless uses very short fades, a third of the gap and at most
	// 30 ms crossfades.
	ModeSeamless
)

// Mode-specific limits.
const (
	standardFadeMax  = 50 * time.Millisecond
	artisticFadeMax  = 300 * time.Millisecond
	seamlessFadeMax  = 15 * time.Millisecond
	artisticMinCross = 400 * time.Millisecond
	seamlessMaxCross = 30 * time.Millisecond
	seamlessMinGap   = 50 * time.Millisecond
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeArtistic:
		return "artistic"
	case ModeSeamless:
		return "seamless"
	default:
		return "standard"
	}
}

// ParseMode parses a mode name. The empty string selects [ModeStandard].
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return ModeStandard, nil
	case "artistic":
		return ModeArtistic, nil
	case "seamless":
		return ModeSeamless, nil
	}
	return 0, fmt.Errorf("assemble: unknown mode %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// fadeFrames returns the fade-in and fade-out length for a segment of n
// frames. The fraction cap keeps both fades within the segment.
func (m Mode) fadeFrames(f audio.Format, n int) int {
	switch m {
	case ModeArtistic:
		return min(f.FrameCount(artisticFadeMax), n/2)
	case ModeSeamless:
		return min(f.FrameCount(seamlessFadeMax), n/10)
	default:
		return min(f.FrameCount(standardFadeMax), n/4)
	}
}

// join describes how one segment is attached to the running output.
type join struct {
	silence   time.Duration
	crossfade time.Duration
	// keepGapWithoutCrossfade restores the full gap when the crossfade
	// cannot be applied.
	keepGapWithoutCrossfade bool
}

// joinFor returns the join parameters for gap and base crossfade.
func (m Mode) joinFor(gap, crossfade time.Duration) join {
	switch m {
	case ModeArtistic:
		cf := max(crossfade, artisticMinCross)
		return join{silence: max(0, gap-cf), crossfade: cf, keepGapWithoutCrossfade: true}
	case ModeSeamless:
		return join{silence: max(seamlessMinGap, gap/3), crossfade: min(crossfade, seamlessMaxCross)}
	default:
		return join{silence: gap, crossfade: crossfade}
	}
}

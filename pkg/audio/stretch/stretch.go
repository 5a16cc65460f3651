// Package stretch changes the tempo of an [audio.Buffer].
//
// Two modes are available. [ModePreservePitch] uses WSOLA (waveform
// similarity overlap-add): short Hann-windowed grains are taken from the
// input at the analysis rate and overlap-added at a fixed synthesis hop,
// each grain shifted within a small tolerance to best continue the previous
// one. [ModeResample] simply reads the input faster or slower, which shifts
// pitch along with tempo.
//
// A factor above 1 speeds up (shortens) the audio, below 1 slows it down.
package stretch

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/mixplay/pkg/audio"
)

// Factor bounds accepted by [Stretch].
const (
	MinFactor = 0.25
	MaxFactor = 4.0
)

// grainLength is the WSOLA analysis window.
const grainLength = 30 * time.Millisecond

var (
	// ErrInvalidFactor is returned for factors that are not finite or
	// outside [MinFactor, MaxFactor].
	ErrInvalidFactor = errors.New("stretch: invalid tempo factor")

	// ErrTooShort is returned when the input is shorter than two grains.
	ErrTooShort = errors.New("stretch: input too short")
)

// Mode selects the stretch algorithm.
type Mode int

const (
	// ModePreservePitch keeps pitch constant (WSOLA).
	ModePreservePitch Mode = iota

	// ModeResample changes pitch with tempo.
	ModeResample
)

// String returns the mode name used in configuration.
func (m Mode) String() string {
	if m == ModeResample {
		return "resample"
	}
	return "preserve_pitch"
}

// ParseMode parses a mode name. The empty string selects
// [ModePreservePitch].
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preserve_pitch", "wsola":
		return ModePreservePitch, nil
	case "resample":
		return ModeResample, nil
	}
	return 0, fmt.Errorf("stretch: unknown mode %q", s)
}

// Stretch changes the tempo of b by factor using mode. A factor of exactly 1
// returns a copy of b.
func Stretch(b audio.Buffer, factor float64, mode Mode) (audio.Buffer, error) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < MinFactor || factor > MaxFactor {
		return audio.Buffer{}, fmt.Errorf("%w: %v", ErrInvalidFactor, factor)
	}
	if !b.Valid() {
		return audio.Buffer{}, fmt.Errorf("stretch: invalid format %s", b.Format)
	}
	if factor == 1 {
		return b.Clone(), nil
	}
	if mode == ModeResample {
		return Resample(b, factor)
	}
	return WSOLA(b, factor)
}

// Resample changes tempo and pitch together by linear interpolation.
func Resample(b audio.Buffer, factor float64) (audio.Buffer, error) {
	if b.Frames() < 2 {
		return audio.Buffer{}, ErrTooShort
	}
	return audio.Buffer{
		Format:  b.Format,
		Samples: audio.ResampleFrames(b.Samples, b.Channels, factor),
	}, nil
}

// WSOLA changes tempo while preserving pitch.
func WSOLA(b audio.Buffer, factor float64) (audio.Buffer, error) {
	n := b.FrameCount(grainLength)
	n -= n % 2
	frames := b.Frames()
	if n < 8 || frames < 2*n {
		return audio.Buffer{}, fmt.Errorf("%w: %s for %s grains", ErrTooShort, b.Duration(), grainLength)
	}

	ch := b.Channels
	synHop := n / 2
	anaHop := float64(synHop) * factor
	tolerance := synHop / 2
	outFrames := int(math.Round(float64(frames) / factor))

	window := hann(n)
	mono := audio.Downmix(b).Samples
	out := make([]float32, (outFrames+n)*ch)
	norm := make([]float32, outFrames+n)

	prev := 0
	for k := 0; k*synHop < outFrames; k++ {
		pos := 0
		if k > 0 {
			nominal := int(math.Round(float64(k) * anaHop))
			pos = bestOffset(mono, prev+synHop, nominal, tolerance, n)
		}
		syn := k * synHop
		for i := range n {
			w := window[i]
			norm[syn+i] += w
			for c := range ch {
				out[(syn+i)*ch+c] += w * b.Samples[(pos+i)*ch+c]
			}
		}
		prev = pos
	}

	for f := range outFrames {
		if w := norm[f]; w > 1e-6 {
			for c := range ch {
				out[f*ch+c] /= w
			}
		}
	}
	return audio.Buffer{Format: b.Format, Samples: out[:outFrames*ch]}, nil
}

// bestOffset returns the grain start within nominal±tolerance whose first n
// mono samples correlate best with the natural continuation at target.
// Candidates are clamped so every grain lies inside the input.
func bestOffset(mono []float32, target, nominal, tolerance, n int) int {
	last := len(mono) - n
	target = min(max(target, 0), last)
	lo := min(max(nominal-tolerance, 0), last)
	hi := min(max(nominal+tolerance, 0), last)

	ref := mono[target : target+n]
	best, bestScore := lo, math.Inf(-1)
	for p := lo; p <= hi; p++ {
		cand := mono[p : p+n]
		var score float64
		for i := 0; i < n; i += 2 {
			score += float64(ref[i] * cand[i])
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

// hann returns a periodic Hann window of length n; overlapping copies at
// n/2 hops sum to one.
func hann(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

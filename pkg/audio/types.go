// Package audio holds the in-memory sample buffer used throughout mixplay
// and the DSP primitives the assembler builds on: format conversion, peak
// normalisation, linear fades, silence and crossfaded appends.
//
// Samples are interleaved float32 values in [-1, 1]. Codecs (see
// [github.com/MrWong99/mixplay/pkg/audio/wav]) convert to and from integer
// PCM at the edges.
package audio

import (
	"fmt"
	"math"
	"time"
)

// Format describes the sample rate and channel count of a buffer.
type Format struct {
	SampleRate int
	Channels   int
}

// Valid reports whether f has a positive rate and channel count.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// FrameCount returns the number of frames covering d, rounded to the
// nearest frame. Negative durations yield 0.
func (f Format) FrameCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(f.SampleRate)))
}

// FrameDuration returns the playback time of n frames.
func (f Format) FrameDuration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(f.SampleRate))
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Buffer is a block of interleaved float32 samples.
type Buffer struct {
	Format
	Samples []float32
}

// Frames returns the number of multi-channel frames in b.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback time of b.
func (b Buffer) Duration() time.Duration {
	return b.FrameDuration(b.Frames())
}

// Clone returns a deep copy of b.
func (b Buffer) Clone() Buffer {
	return Buffer{Format: b.Format, Samples: append([]float32(nil), b.Samples...)}
}

// Slice returns a copy of the frames between from and to, clamped to the
// buffer bounds. An inverted or empty range yields an empty buffer.
func (b Buffer) Slice(from, to time.Duration) Buffer {
	n := b.Frames()
	start := min(b.FrameCount(from), n)
	end := min(b.FrameCount(to), n)
	if end <= start {
		return Buffer{Format: b.Format}
	}
	out := make([]float32, (end-start)*b.Channels)
	copy(out, b.Samples[start*b.Channels:end*b.Channels])
	return Buffer{Format: b.Format, Samples: out}
}

// Peak returns the largest absolute sample value.
func (b Buffer) Peak() float32 {
	var p float32
	for _, s := range b.Samples {
		if s < 0 {
			s = -s
		}
		if s > p {
			p = s
		}
	}
	return p
}

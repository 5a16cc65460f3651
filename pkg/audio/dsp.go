package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrFormatMismatch is returned when two buffers with different formats are
// joined.
var ErrFormatMismatch = errors.New("audio: format mismatch")

// Silence returns d of digital silence in format f.
func Silence(f Format, d time.Duration) Buffer {
	return Buffer{Format: f, Samples: make([]float32, f.FrameCount(d)*f.Channels)}
}

// GainForHeadroom returns the linear factor that brings peak to headroomDB
// below full scale. A silent peak yields 1.
func GainForHeadroom(peak float32, headroomDB float64) float64 {
	if peak <= 0 {
		return 1
	}
	return math.Pow(10, -headroomDB/20) / float64(peak)
}

// Normalize scales b in place so that its peak sits headroomDB below full
// scale. Silent buffers are left untouched.
func Normalize(b Buffer, headroomDB float64) {
	g := float32(GainForHeadroom(b.Peak(), headroomDB))
	if g == 1 {
		return
	}
	for i := range b.Samples {
		b.Samples[i] *= g
	}
}

// FadeIn ramps the first n frames of b linearly from silence, in place.
func FadeIn(b Buffer, n int) {
	n = min(n, b.Frames())
	for i := range n {
		g := float32(i) / float32(n)
		for c := range b.Channels {
			b.Samples[i*b.Channels+c] *= g
		}
	}
}

// FadeOut ramps the last n frames of b linearly to silence, in place.
func FadeOut(b Buffer, n int) {
	frames := b.Frames()
	n = min(n, frames)
	for i := range n {
		g := float32(n-1-i) / float32(n)
		f := frames - n + i
		for c := range b.Channels {
			b.Samples[f*b.Channels+c] *= g
		}
	}
}

// Concat joins buffers back to back. All buffers must share one format.
func Concat(bufs ...Buffer) (Buffer, error) {
	if len(bufs) == 0 {
		return Buffer{}, nil
	}
	f := bufs[0].Format
	total := 0
	for _, b := range bufs {
		if b.Format != f {
			return Buffer{}, fmt.Errorf("%w: %s and %s", ErrFormatMismatch, f, b.Format)
		}
		total += len(b.Samples)
	}
	out := make([]float32, 0, total)
	for _, b := range bufs {
		out = append(out, b.Samples...)
	}
	return Buffer{Format: f, Samples: out}, nil
}

// Crossfade appends next to prev, overlapping the last n frames of prev with
// the first n frames of next under complementary linear ramps. The result is
// Frames(prev)+Frames(next)-n frames long. n is clamped to the shorter
// buffer.
func Crossfade(prev, next Buffer, n int) (Buffer, error) {
	if prev.Format != next.Format {
		return Buffer{}, fmt.Errorf("%w: %s and %s", ErrFormatMismatch, prev.Format, next.Format)
	}
	n = min(n, prev.Frames(), next.Frames())
	if n <= 0 {
		return Concat(prev, next)
	}
	ch := prev.Channels
	head := len(prev.Samples) - n*ch
	out := make([]float32, head, len(prev.Samples)+len(next.Samples)-n*ch)
	copy(out, prev.Samples[:head])
	for i := range n {
		in := float32(i) / float32(n)
		for c := range ch {
			a := prev.Samples[head+i*ch+c]
			b := next.Samples[i*ch+c]
			out = append(out, a*(1-in)+b*in)
		}
	}
	out = append(out, next.Samples[n*ch:]...)
	return Buffer{Format: prev.Format, Samples: out}, nil
}

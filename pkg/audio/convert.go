package audio

import (
	"log/slog"
	"math"
	"sync"
)

// FormatConverter converts buffers to a target format. It logs a warning on
// the first format mismatch. Create one per render; it is safe for
// concurrent use.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert returns b in the target format. If the source format already
// matches, b is returned unchanged. Conversion order: resample first, then
// channel convert.
func (c *FormatConverter) Convert(b Buffer) Buffer {
	if b.Format == c.Target {
		return b
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", b.Format.String(),
			"to", c.Target.String(),
		)
	})
	return ToFormat(b, c.Target)
}

// ToFormat resamples and channel-converts b to target.
func ToFormat(b Buffer, target Format) Buffer {
	if b.SampleRate != target.SampleRate {
		b = Resample(b, target.SampleRate)
	}
	if b.Channels != target.Channels {
		b = Remix(b, target.Channels)
	}
	return b
}

// Remix changes the channel count of b. Mono is duplicated to every output
// channel; anything else is first averaged down to mono.
func Remix(b Buffer, channels int) Buffer {
	if channels <= 0 || b.Channels == channels {
		return b
	}
	mono := b
	if b.Channels != 1 {
		mono = Downmix(b)
	}
	if channels == 1 {
		return mono
	}
	out := make([]float32, len(mono.Samples)*channels)
	for i, s := range mono.Samples {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return Buffer{Format: Format{SampleRate: b.SampleRate, Channels: channels}, Samples: out}
}

// Downmix averages all channels of each frame into a mono buffer.
func Downmix(b Buffer) Buffer {
	if b.Channels <= 1 {
		return b
	}
	frames := b.Frames()
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range b.Channels {
			sum += b.Samples[i*b.Channels+c]
		}
		out[i] = sum / float32(b.Channels)
	}
	return Buffer{Format: Format{SampleRate: b.SampleRate, Channels: 1}, Samples: out}
}

// Resample converts b to dstRate using linear interpolation per channel.
// Pitch changes with the rate ratio when the result is played back at the
// original rate, which is what [github.com/MrWong99/mixplay/pkg/audio/stretch]
// relies on for its non-pitch-preserving mode.
func Resample(b Buffer, dstRate int) Buffer {
	if dstRate <= 0 || b.SampleRate <= 0 || b.SampleRate == dstRate {
		return b
	}
	dst := int(int64(b.Frames()) * int64(dstRate) / int64(b.SampleRate))
	out := Buffer{Format: Format{SampleRate: dstRate, Channels: b.Channels}}
	out.Samples = interpolate(b.Samples, b.Channels, float64(b.SampleRate)/float64(dstRate), dst)
	return out
}

// ResampleFrames linearly interpolates interleaved samples, reading the
// source at step frames per output frame. A step above 1 shortens the
// signal.
func ResampleFrames(samples []float32, channels int, step float64) []float32 {
	if channels <= 0 || step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return samples
	}
	dst := int(math.Floor(float64(len(samples)/channels)/step + 1e-9))
	return interpolate(samples, channels, step, dst)
}

func interpolate(samples []float32, channels int, step float64, dstFrames int) []float32 {
	srcFrames := len(samples) / channels
	if srcFrames == 0 || dstFrames <= 0 {
		return nil
	}

	out := make([]float32, dstFrames*channels)
	for i := range dstFrames {
		srcPos := float64(i) * step
		srcIdx := int(srcPos)
		if srcIdx >= srcFrames {
			srcIdx = srcFrames - 1
		}
		frac := float32(srcPos - float64(srcIdx))
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for c := range channels {
			s0 := samples[srcIdx*channels+c]
			s1 := samples[next*channels+c]
			out[i*channels+c] = s0*(1-frac) + s1*frac
		}
	}
	return out
}

// FromPCM16 converts interleaved int16 samples to a buffer.
func FromPCM16(pcm []int16, f Format) Buffer {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768
	}
	return Buffer{Format: f, Samples: out}
}

// PCM16 converts b to interleaved int16 samples, clamping out-of-range
// values.
func (b Buffer) PCM16() []int16 {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		v := math.Round(float64(s) * 32767)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

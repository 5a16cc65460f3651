package audio_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/mixplay/pkg/audio"
)

func TestSilence(t *testing.T) {
	s := audio.Silence(audio.Format{SampleRate: 1000, Channels: 2}, 250*time.Millisecond)
	if s.Frames() != 250 || len(s.Samples) != 500 {
		t.Fatalf("frames = %d samples = %d, want 250/500", s.Frames(), len(s.Samples))
	}
	if s.Peak() != 0 {
		t.Error("silence is not silent")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		headroom float64
		want     float64
	}{
		{"0dB", 0, 1},
		{"10dB", 10, math.Pow(10, -0.5)},
		{"20dB", 20, 0.1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := buf(8000, 1, 0.25, -0.5, 0.1)
			audio.Normalize(b, tc.headroom)
			if got := float64(b.Peak()); math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("peak = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalize_Silent(t *testing.T) {
	b := buf(8000, 1, 0, 0, 0)
	audio.Normalize(b, 10)
	for i, s := range b.Samples {
		if s != 0 {
			t.Errorf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestFades(t *testing.T) {
	b := buf(8000, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	audio.FadeIn(b, 4)
	audio.FadeOut(b, 4)
	want := []float32{0, 0.25, 0.5, 0.75, 0.75, 0.5, 0.25, 0}
	for i := range want {
		if !near(b.Samples[i], want[i]) {
			t.Errorf("sample %d = %v, want %v", i, b.Samples[i], want[i])
		}
	}
}

func TestFades_Stereo(t *testing.T) {
	b := buf(8000, 2, 1, 1, 1, 1)
	audio.FadeIn(b, 2)
	if b.Samples[0] != 0 || b.Samples[1] != 0 || !near(b.Samples[2], 0.5) || !near(b.Samples[3], 0.5) {
		t.Errorf("stereo fade = %v", b.Samples)
	}
}

func TestCrossfade(t *testing.T) {
	a := buf(8000, 1, 1, 1, 1, 1)
	b := buf(8000, 1, 0, 0, 0, 0, 0)

	out, err := audio.Crossfade(a, b, 2)
	if err != nil {
		t.Fatalf("Crossfade: %v", err)
	}
	if got, want := out.Frames(), 4+5-2; got != want {
		t.Fatalf("frames = %d, want %d", got, want)
	}
	want := []float32{1, 1, 1, 0.5, 0, 0, 0}
	for i := range want {
		if !near(out.Samples[i], want[i]) {
			t.Errorf("sample %d = %v, want %v", i, out.Samples[i], want[i])
		}
	}
}

func TestCrossfade_ClampsAndConcats(t *testing.T) {
	a := buf(8000, 1, 1, 1)
	b := buf(8000, 1, 0.5, 0.5, 0.5)

	out, err := audio.Crossfade(a, b, 10)
	if err != nil {
		t.Fatalf("Crossfade: %v", err)
	}
	if out.Frames() != 3 {
		t.Errorf("clamped crossfade frames = %d, want 3", out.Frames())
	}

	out, err = audio.Crossfade(a, b, 0)
	if err != nil {
		t.Fatalf("Crossfade: %v", err)
	}
	if out.Frames() != 5 {
		t.Errorf("zero crossfade frames = %d, want 5", out.Frames())
	}
}

func TestJoin_FormatMismatch(t *testing.T) {
	a := buf(8000, 1, 1)
	b := buf(16000, 1, 1)
	if _, err := audio.Crossfade(a, b, 1); !errors.Is(err, audio.ErrFormatMismatch) {
		t.Errorf("Crossfade err = %v, want ErrFormatMismatch", err)
	}
	if _, err := audio.Concat(a, b); !errors.Is(err, audio.ErrFormatMismatch) {
		t.Errorf("Concat err = %v, want ErrFormatMismatch", err)
	}
}

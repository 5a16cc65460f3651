// Package wav reads and writes RIFF/WAVE files as [audio.Buffer] values.
package wav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/MrWong99/mixplay/pkg/audio"
)

// WAVE format tags.
const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// DefaultBitDepth is used by [Encode] when no bit depth is given.
const DefaultBitDepth = 16

var (
	// ErrInvalid is returned for input that is not a RIFF/WAVE stream.
	ErrInvalid = errors.New("wav: not a valid wave file")

	// ErrUnsupported is returned for wave files that are not integer PCM.
	ErrUnsupported = errors.New("wav: unsupported encoding")
)

// Decode reads a complete PCM wave stream into a buffer.
func Decode(r io.ReadSeeker) (audio.Buffer, error) {
	d := gowav.NewDecoder(r)
	if !d.IsValidFile() {
		return audio.Buffer{}, ErrInvalid
	}
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return audio.Buffer{}, fmt.Errorf("wav: read header: %w", err)
	}
	if d.WavAudioFormat != formatPCM && d.WavAudioFormat != formatExtensible {
		return audio.Buffer{}, fmt.Errorf("%w: format tag %d", ErrUnsupported, d.WavAudioFormat)
	}
	depth := int(d.BitDepth)
	switch depth {
	case 8, 16, 24, 32:
	default:
		return audio.Buffer{}, fmt.Errorf("%w: %d-bit samples", ErrUnsupported, depth)
	}

	ib, err := d.FullPCMBuffer()
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("wav: read samples: %w", err)
	}

	f := audio.Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	if !f.Valid() {
		return audio.Buffer{}, fmt.Errorf("%w: %s", ErrInvalid, f)
	}
	out := make([]float32, len(ib.Data))
	if depth == 8 {
		// 8-bit wave samples are unsigned.
		for i, v := range ib.Data {
			out[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (depth - 1))
		for i, v := range ib.Data {
			out[i] = float32(v) / scale
		}
	}
	// Drop a trailing partial frame.
	out = out[:len(out)-len(out)%f.Channels]
	return audio.Buffer{Format: f, Samples: out}, nil
}

// DecodeFile decodes the wave file at path.
func DecodeFile(path string) (audio.Buffer, error) {
	fh, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("wav: %w", err)
	}
	defer fh.Close()
	b, err := Decode(fh)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// FileDecoder decodes wave files from the local filesystem.
type FileDecoder struct{}

// Decode implements the assembler's decoder contract.
func (FileDecoder) Decode(ctx context.Context, path string) (audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, err
	}
	return DecodeFile(path)
}

// Encode writes b as integer PCM with the given bit depth (0 selects
// [DefaultBitDepth]).
func Encode(w io.WriteSeeker, b audio.Buffer, bitDepth int) error {
	if bitDepth == 0 {
		bitDepth = DefaultBitDepth
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d-bit samples", ErrUnsupported, bitDepth)
	}
	if !b.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalid, b.Format)
	}

	data := make([]int, len(b.Samples))
	full := float64(int64(1)<<(bitDepth-1)) - 1
	for i, s := range b.Samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		q := int(v * full)
		if bitDepth == 8 {
			q += 128
		}
		data[i] = q
	}

	enc := gowav.NewEncoder(w, b.SampleRate, bitDepth, b.Channels, formatPCM)
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: b.Channels, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("wav: write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: finalize: %w", err)
	}
	return nil
}

// WriteFile encodes b into a new file at path.
func WriteFile(path string, b audio.Buffer, bitDepth int) (err error) {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	defer func() {
		if cerr := fh.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("wav: %w", cerr)
		}
	}()
	return Encode(fh, b, bitDepth)
}

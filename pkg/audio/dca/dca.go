// Package dca writes rendered audio as DCA: a stream of Opus packets at
// 48 kHz stereo in 20 ms frames, each prefixed with its byte length as a
// little-endian int16. The format is what Discord voice bots typically
// replay without re-encoding.
package dca

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"layeh.com/gopus"

	"github.com/MrWong99/mixplay/pkg/audio"
)

// Opus framing used for every DCA stream.
const (
	SampleRate  = 48000
	Channels    = 2
	FrameSizeMs = 20
	// FrameSize is the number of samples per channel per frame.
	FrameSize = SampleRate * FrameSizeMs / 1000 // 960

	// maxPacket bounds one encoded Opus packet.
	maxPacket = 4000
)

// DefaultBitrate is the Opus bitrate in bits per second.
const DefaultBitrate = 64000

// Format is the PCM format fed to the Opus encoder.
var Format = audio.Format{SampleRate: SampleRate, Channels: Channels}

// ErrClosed is returned when writing to a closed [Writer].
var ErrClosed = errors.New("dca: writer closed")

// FrameEncoder encodes one frame of interleaved int16 PCM.
type FrameEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// Compile-time interface check.
var _ FrameEncoder = (*gopus.Encoder)(nil)

// NewOpusEncoder returns a gopus encoder for the DCA frame format.
func NewOpusEncoder(bitrate int) (*gopus.Encoder, error) {
	enc, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("dca: create opus encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return enc, nil
}

// Option configures a [Writer].
type Option func(*Writer)

// WithBitrate sets the Opus bitrate. Ignored when [WithEncoder] is used.
func WithBitrate(bps int) Option {
	return func(w *Writer) { w.bitrate = bps }
}

// WithEncoder replaces the Opus encoder.
func WithEncoder(enc FrameEncoder) Option {
	return func(w *Writer) { w.enc = enc }
}

// Writer encodes buffers into a DCA stream. It is not safe for concurrent
// use.
type Writer struct {
	dst     io.Writer
	enc     FrameEncoder
	bitrate int
	conv    audio.FormatConverter
	pending []int16
	frames  int
	closed  bool
}

// NewWriter returns a [Writer] emitting packets to dst.
func NewWriter(dst io.Writer, opts ...Option) (*Writer, error) {
	w := &Writer{dst: dst, bitrate: DefaultBitrate, conv: audio.FormatConverter{Target: Format}}
	for _, o := range opts {
		o(w)
	}
	if w.enc == nil {
		enc, err := NewOpusEncoder(w.bitrate)
		if err != nil {
			return nil, err
		}
		w.enc = enc
	}
	return w, nil
}

// Write converts b to 48 kHz stereo and emits every complete frame.
func (w *Writer) Write(b audio.Buffer) error {
	if w.closed {
		return ErrClosed
	}
	w.pending = append(w.pending, w.conv.Convert(b).PCM16()...)
	step := FrameSize * Channels
	for len(w.pending) >= step {
		if err := w.emit(w.pending[:step]); err != nil {
			return err
		}
		w.pending = w.pending[step:]
	}
	return nil
}

// Close pads a trailing partial frame with silence and emits it.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.pending) == 0 {
		return nil
	}
	frame := make([]int16, FrameSize*Channels)
	copy(frame, w.pending)
	w.pending = nil
	return w.emit(frame)
}

// Frames returns the number of packets written.
func (w *Writer) Frames() int { return w.frames }

func (w *Writer) emit(pcm []int16) error {
	packet, err := w.enc.Encode(pcm, FrameSize, maxPacket)
	if err != nil {
		return fmt.Errorf("dca: opus encode: %w", err)
	}
	if len(packet) > math.MaxInt16 {
		return fmt.Errorf("dca: packet of %d bytes exceeds frame header", len(packet))
	}
	if err := binary.Write(w.dst, binary.LittleEndian, int16(len(packet))); err != nil {
		return fmt.Errorf("dca: write header: %w", err)
	}
	if _, err := w.dst.Write(packet); err != nil {
		return fmt.Errorf("dca: write packet: %w", err)
	}
	w.frames++
	return nil
}

// Encode writes b to dst as a complete DCA stream.
func Encode(dst io.Writer, b audio.Buffer, opts ...Option) error {
	w, err := NewWriter(dst, opts...)
	if err != nil {
		return err
	}
	if err := w.Write(b); err != nil {
		return err
	}
	return w.Close()
}

// ReadPackets splits a DCA stream back into its Opus packets.
func ReadPackets(r io.Reader) ([][]byte, error) {
	var packets [][]byte
	for {
		var n int16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			if errors.Is(err, io.EOF) {
				return packets, nil
			}
			return nil, fmt.Errorf("dca: read header: %w", err)
		}
		if n < 0 {
			return nil, fmt.Errorf("dca: negative packet length %d", n)
		}
		p := make([]byte, n)
		if _, err := io.ReadFull(r, p); err != nil {
			return nil, fmt.Errorf("dca: read packet: %w", err)
		}
		packets = append(packets, p)
	}
}

// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, float sample buffers and raw PCM chunks
package audio

import (
	"fmt"
	"time"
)

const (
	// 16-bit signed PCM range constants
	Max16Bit = 32767  // 2^15 - 1
	Min16Bit = -32768 // -2^15

	// BytesPerSample is the width of one signed 16-bit PCM sample.
	BytesPerSample = 2
)

// Format describes an audio stream format.
type Format struct {
	Codec      string // "pcm16" or "opus"
	SampleRate int
	Channels   int
}

// FrameBytes returns the byte width of one interleaved frame.
func (f Format) FrameBytes() int {
	return f.Channels * BytesPerSample
}

// Validate reports whether the format is usable for streaming.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	return nil
}

// SampleBuffer holds decoded audio as float32 samples in [-1, 1],
// one plane per channel. Buffers are not mutated after creation.
type SampleBuffer struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the per-channel sample count.
func (b *SampleBuffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration of the buffer.
func (b *SampleBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// PCMChunk is a raw signed 16-bit little-endian interleaved byte sequence.
// Seq is a monotonic arrival sequence number assigned by the producer.
type PCMChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
	Seq        uint64
}

// Frames returns the number of interleaved frames in the chunk.
func (c PCMChunk) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Data) / (c.Channels * BytesPerSample)
}

// Duration returns the playback duration of the chunk.
func (c PCMChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Validate checks byte alignment: chunk length must be a whole number of
// frames (2 bytes per sample per channel).
func (c PCMChunk) Validate() error {
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	if len(c.Data)%(c.Channels*BytesPerSample) != 0 {
		return fmt.Errorf("chunk length %d not aligned to %d-byte frames", len(c.Data), c.Channels*BytesPerSample)
	}
	return nil
}

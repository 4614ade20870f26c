// ABOUTME: Opus payload decoder
// ABOUTME: Decodes Opus packets into float sample buffers
package decode

import (
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/pcm"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is the largest decoded frame opus permits (120ms at 48kHz).
const maxOpusFrame = 5760

// OpusDecoder decodes Opus packets
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{decoder: dec, format: format}, nil
}

// Decode converts one Opus packet to a SampleBuffer
func (d *OpusDecoder) Decode(data []byte) (*audio.SampleBuffer, error) {
	pcm16 := make([]int16, maxOpusFrame*d.format.Channels)

	frames, err := d.decoder.Decode(data, pcm16)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	planes := make([][]float32, d.format.Channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < d.format.Channels; ch++ {
			planes[ch][i] = pcm.SampleFromInt16(pcm16[i*d.format.Channels+ch])
		}
	}

	return &audio.SampleBuffer{Channels: planes, SampleRate: d.format.SampleRate}, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}

// ABOUTME: PCM16 payload decoder
// ABOUTME: Decodes raw little-endian PCM into float sample buffers
package decode

import (
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/pcm"
)

// PCMDecoder decodes raw PCM16 payloads
type PCMDecoder struct {
	format audio.Format
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm16" && format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	return &PCMDecoder{format: format}, nil
}

// Decode converts PCM16 bytes to a SampleBuffer. Misaligned payloads are
// rejected so a corrupt chunk never reaches the playback timeline.
func (d *PCMDecoder) Decode(data []byte) (*audio.SampleBuffer, error) {
	buf, err := pcm.Decode(data, d.format.SampleRate, d.format.Channels)
	if err != nil {
		return nil, fmt.Errorf("pcm decode failed: %w", err)
	}
	return buf, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}

// ABOUTME: PCM16 payload encoder
// ABOUTME: Encodes float samples into raw little-endian PCM
package encode

import (
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/pcm"
)

// PCMEncoder encodes raw PCM16 payloads
type PCMEncoder struct {
	format audio.Format
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm16" && format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	return &PCMEncoder{format: format}, nil
}

// Encode converts interleaved float samples to PCM16 bytes. Sample counts
// that do not divide into whole frames are rejected.
func (e *PCMEncoder) Encode(samples []float32) ([]byte, error) {
	if len(samples)%e.format.Channels != 0 {
		return nil, fmt.Errorf("sample count %d not aligned to %d channels", len(samples), e.format.Channels)
	}
	return pcm.Encode(samples), nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}

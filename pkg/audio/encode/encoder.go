// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for downlink audio encoders
package encode

import (
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

// Encoder converts interleaved float samples into transport payloads.
type Encoder interface {
	// Encode converts one frame of samples to an encoded payload.
	Encode(samples []float32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}

// New creates an encoder for the format's codec.
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case "pcm16", "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for downlink audio decoders
package decode

import (
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

// Decoder converts transport payloads into float sample buffers.
type Decoder interface {
	// Decode converts one encoded payload to a SampleBuffer.
	Decode(data []byte) (*audio.SampleBuffer, error)

	// Close releases decoder resources
	Close() error
}

// New creates a decoder for the format's codec.
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "pcm16", "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

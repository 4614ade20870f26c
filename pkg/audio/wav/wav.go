// ABOUTME: WAV container framing for PCM16 chunks
// ABOUTME: Builds and parses the fixed 44-byte RIFF/WAVE header
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

// HeaderSize is the fixed byte length of the RIFF/WAVE header preceding
// the data section.
const HeaderSize = 44

// Header is the on-disk RIFF/WAVE header layout. Field order and widths
// match the container format; it serializes to exactly HeaderSize bytes.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data length
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 = PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * 2
	BlockAlign    uint16 // NumChannels * 2
	BitsPerSample uint16 // always 16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // data length
}

// NewHeader builds a header describing a PCM16 data section of dataLen bytes.
func NewHeader(dataLen, sampleRate, channels int) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(dataLen),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(channels) * audio.BytesPerSample,
		BlockAlign:    uint16(channels) * audio.BytesPerSample,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataLen),
	}
}

// Wrap prepends the 44-byte header to raw PCM16 data. An empty chunk is
// valid and yields the bare header with a zero-length data section.
func Wrap(data []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if len(data)%(channels*audio.BytesPerSample) != 0 {
		return nil, fmt.Errorf("data length %d not aligned to %d-byte frames", len(data), channels*audio.BytesPerSample)
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(data)))
	if err := binary.Write(buf, binary.LittleEndian, NewHeader(len(data), sampleRate, channels)); err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// WrapChunk frames a PCMChunk using its own rate and channel tags.
func WrapChunk(chunk audio.PCMChunk) ([]byte, error) {
	return Wrap(chunk.Data, chunk.SampleRate, chunk.Channels)
}

// Parse reads the header from container bytes and returns it together with
// the data section.
func Parse(b []byte) (Header, []byte, error) {
	if len(b) < HeaderSize {
		return Header{}, nil, fmt.Errorf("wav data too short: need %d bytes, got %d", HeaderSize, len(b))
	}

	var h Header
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &h); err != nil {
		return Header{}, nil, fmt.Errorf("failed to read wav header: %w", err)
	}

	if string(h.ChunkID[:]) != "RIFF" {
		return Header{}, nil, fmt.Errorf("missing RIFF header")
	}
	if string(h.Format[:]) != "WAVE" {
		return Header{}, nil, fmt.Errorf("missing WAVE format")
	}
	if string(h.Subchunk1ID[:]) != "fmt " {
		return Header{}, nil, fmt.Errorf("missing fmt chunk")
	}
	if string(h.Subchunk2ID[:]) != "data" {
		return Header{}, nil, fmt.Errorf("missing data chunk")
	}
	if h.AudioFormat != 1 {
		return Header{}, nil, fmt.Errorf("unsupported audio format %d", h.AudioFormat)
	}

	data := b[HeaderSize:]
	if uint32(len(data)) < h.Subchunk2Size {
		return Header{}, nil, fmt.Errorf("data section truncated: header declares %d bytes, got %d", h.Subchunk2Size, len(data))
	}
	return h, data[:h.Subchunk2Size], nil
}

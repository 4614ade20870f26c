// ABOUTME: PCM16 codec between float samples and little-endian bytes
// ABOUTME: Implements the asymmetric scale used by signed 16-bit PCM
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

// SampleToInt16 converts a float sample in [-1, 1] to signed 16-bit PCM.
// Negative values scale by 32768 and non-negative values by 32767 so that
// -1.0 maps to -32768 and 1.0 maps to 32767. Out-of-range input clamps.
// The asymmetry is load-bearing for bit-exact round trips.
func SampleToInt16(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

// SampleFromInt16 converts a signed 16-bit PCM sample to a float in [-1, 1).
func SampleFromInt16(v int16) float32 {
	return float32(v) / 32768.0
}

// Encode converts interleaved float samples to 16-bit little-endian PCM.
// The output is always exactly 2*len(samples) bytes.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*audio.BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(SampleToInt16(s)))
	}
	return out
}

// Decode converts 16-bit little-endian PCM bytes into a SampleBuffer with
// one float plane per channel. Input that is not a whole number of frames
// is rejected.
func Decode(data []byte, sampleRate, channels int) (*audio.SampleBuffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	frameBytes := channels * audio.BytesPerSample
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("pcm data length %d not aligned to %d-byte frames", len(data), frameBytes)
	}

	frames := len(data) / frameBytes
	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			raw := int16(binary.LittleEndian.Uint16(data[(i*channels+ch)*2:]))
			planes[ch][i] = SampleFromInt16(raw)
		}
	}

	return &audio.SampleBuffer{Channels: planes, SampleRate: sampleRate}, nil
}

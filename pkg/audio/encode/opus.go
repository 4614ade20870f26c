// ABOUTME: Opus payload encoder
// ABOUTME: Encodes float samples into Opus packets tuned for speech
package encode

import (
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/pcm"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest encoded packet opus produces.
const maxOpusPacket = 4000

// speechBitrate is the per-channel target bitrate for synthesized speech.
const speechBitrate = 32000

// OpusEncoder encodes Opus packets
type OpusEncoder struct {
	encoder *opus.Encoder
	format  audio.Format
	frame   int // samples per channel in one packet
}

// NewOpus creates a new Opus encoder. Packets are always 20ms long, which
// matches the downlink chunk cadence.
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(speechBitrate * format.Channels); err != nil {
		return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder: enc,
		format:  format,
		frame:   format.SampleRate / 50,
	}, nil
}

// Encode converts up to 20ms of interleaved float samples to one Opus
// packet. Short input is zero-padded so a cut-off utterance still encodes.
func (e *OpusEncoder) Encode(samples []float32) ([]byte, error) {
	want := e.frame * e.format.Channels
	if len(samples) > want {
		return nil, fmt.Errorf("opus frame has %d samples, limit is %d", len(samples), want)
	}

	pcm16 := make([]int16, want)
	for i, s := range samples {
		pcm16[i] = pcm.SampleToInt16(s)
	}

	buf := make([]byte, maxOpusPacket)
	n, err := e.encoder.Encode(pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	return buf[:n], nil
}

// Close releases encoder resources
func (e *OpusEncoder) Close() error {
	return nil
}

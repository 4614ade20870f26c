// ABOUTME: Vocalis wire protocol message definitions
// ABOUTME: JSON control envelope plus the binary audio frame codec
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

// Control message types.
const (
	TypeSessionStart    = "session/start"
	TypeSessionReady    = "session/ready"
	TypeSpeechInterrupt = "speech/interrupt"
	TypeSessionEnd      = "session/end"
	TypeSessionError    = "session/error"
)

// Binary frame layout: 1-byte kind + 4-byte big-endian sequence + payload.
const (
	FrameHeaderSize = 5

	FrameUplink   byte = 1 // microphone audio, client to server
	FrameDownlink byte = 2 // synthesized speech, server to client
)

// Message is the envelope for all control messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage wraps a payload struct in an envelope.
func NewMessage(msgType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: data}, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", m.Type, err)
	}
	return nil
}

// AudioFormat describes a stream format on the wire.
type AudioFormat struct {
	Codec      string `json:"codec"` // "pcm16" or "opus"
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// Format converts to the audio package representation.
func (f AudioFormat) Format() audio.Format {
	return audio.Format{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
	}
}

// WireFormat converts from the audio package representation.
func WireFormat(f audio.Format) AudioFormat {
	return AudioFormat{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   16,
	}
}

// SessionStart opens a session. The client lists formats it can play in
// preference order; the server picks one and answers with session/ready.
type SessionStart struct {
	SessionID string        `json:"session_id"`
	Name      string        `json:"name,omitempty"`
	Product   string        `json:"product"`
	Version   string        `json:"version"`
	Uplink    AudioFormat   `json:"uplink"`  // microphone stream format
	Formats   []AudioFormat `json:"formats"` // playable downlink formats
}

// SessionReady confirms the session and carries the negotiated downlink
// format.
type SessionReady struct {
	SessionID  string      `json:"session_id"`
	ServerName string      `json:"server_name,omitempty"`
	Format     AudioFormat `json:"format"`
}

// SpeechInterrupt tells the client to cut playback immediately. The
// service sends it when the user talks over the response.
type SpeechInterrupt struct {
	Reason string `json:"reason,omitempty"` // "barge_in", "replaced"
}

// SessionEnd closes the session from either side.
type SessionEnd struct {
	Reason string `json:"reason,omitempty"` // "user_request", "shutdown", "error"
}

// SessionError reports a fatal server-side failure before close.
type SessionError struct {
	Code    string `json:"code,omitempty"` // "rate_limited", "internal"
	Message string `json:"message"`
}

// EncodeFrame builds a binary audio frame. Sequence numbers wrap at 32
// bits on the wire.
func EncodeFrame(kind byte, seq uint64, payload []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(payload))
	frame[0] = kind
	binary.BigEndian.PutUint32(frame[1:FrameHeaderSize], uint32(seq))
	copy(frame[FrameHeaderSize:], payload)
	return frame
}

// DecodeFrame splits a binary audio frame into kind, sequence and payload.
// The payload aliases data.
func DecodeFrame(data []byte) (byte, uint64, []byte, error) {
	if len(data) < FrameHeaderSize {
		return 0, 0, nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	kind := data[0]
	if kind != FrameUplink && kind != FrameDownlink {
		return 0, 0, nil, fmt.Errorf("unknown frame kind: %d", kind)
	}
	seq := uint64(binary.BigEndian.Uint32(data[1:FrameHeaderSize]))
	return kind, seq, data[FrameHeaderSize:], nil
}

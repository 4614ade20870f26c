// ABOUTME: Audio encoder package for downlink payloads
// ABOUTME: Provides Encoder interface and PCM16/Opus implementations
// Package encode converts float samples into transport payloads.
//
// Encoders are the server-side mirror of pkg/audio/decode: the dev speech
// endpoint encodes each 20ms chunk with the negotiated codec and the
// client decodes it back on the playback timeline.
//
// Example:
//
//	encoder, err := encode.New(format)
//	payload, err := encoder.Encode(samples)
package encode

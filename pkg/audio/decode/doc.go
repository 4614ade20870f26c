// ABOUTME: Audio decoder package for downlink payloads
// ABOUTME: Provides Decoder interface and PCM16/Opus implementations
// Package decode provides decoders for synthesized audio payloads.
//
// Supports: PCM16 (raw little-endian) and Opus.
//
// All decoders implement the Decoder interface and output float32
// sample buffers in [-1, 1] ready for timeline scheduling.
//
// Example:
//
//	decoder, err := decode.New(format)
//	buf, err := decoder.Decode(payload)
package decode

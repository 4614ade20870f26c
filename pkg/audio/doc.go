// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, SampleBuffer and PCMChunk types
// Package audio provides fundamental audio types for real-time voice streaming.
//
// This package defines core types used throughout the vocalis library:
//   - Format: Describes a stream format (codec, sample rate, channels)
//   - SampleBuffer: Decoded audio as float32 planes in [-1, 1]
//   - PCMChunk: Raw signed 16-bit little-endian interleaved bytes with a
//     monotonic sequence number
//
// Example:
//
//	format := audio.Format{
//	    Codec:      "pcm16",
//	    SampleRate: 16000,
//	    Channels:   1,
//	}
package audio

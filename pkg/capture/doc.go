// ABOUTME: Microphone capture package
// ABOUTME: Device abstraction plus the chunk-emitting capture pipeline
// Package capture pulls fixed-size frames from an audio input device,
// encodes them as PCM16 chunks and delivers them push-based to a consumer.
//
// Delivery is best-effort: when the consumer is not ready a chunk is
// dropped and counted rather than queued, keeping capture real-time.
//
// Example:
//
//	pipe := capture.New(capture.Config{
//	    Open:       capture.OpenPortAudio,
//	    SampleRate: 16000,
//	    Channels:   1,
//	})
//	err := pipe.Start(ctx)
//	for chunk := range pipe.Chunks() {
//	    transport.Send(chunk)
//	}
package capture

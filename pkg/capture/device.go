// ABOUTME: Input device abstraction for microphone capture
// ABOUTME: Enables dependency injection and hardware-independent tests
package capture

import "errors"

// ErrDeviceDenied marks input device acquisition failures. Sessions treat
// it as fatal and never retry automatically.
var ErrDeviceDenied = errors.New("capture: device access denied")

// Device provides exclusive access to one audio input stream. A device is
// owned by exactly one Pipeline from Open until Close.
type Device interface {
	// Start begins the hardware stream.
	Start() error

	// Read fills buf with interleaved float32 samples in [-1, 1]. It
	// blocks until one full frame is available.
	Read(buf []float32) error

	// Stop halts the hardware stream. Safe to call more than once.
	Stop() error

	// Close releases the device.
	Close() error
}

// Opener acquires an input device at the given rate, channel count and
// frame size. Production code uses OpenPortAudio; tests inject fakes.
type Opener func(sampleRate, channels, frames int) (Device, error)

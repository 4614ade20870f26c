// ABOUTME: PortAudio-backed input device
// ABOUTME: Opens the default system microphone for capture
package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paInitMu sync.Mutex
	paInits  int
)

// portAudioDevice wraps a PortAudio input stream as a Device.
type portAudioDevice struct {
	stream *portaudio.Stream
	buffer []float32

	mu      sync.Mutex
	started bool
	closed  bool
}

// OpenPortAudio acquires the default input device. Acquisition failures
// wrap ErrDeviceDenied so the session can classify them.
func OpenPortAudio(sampleRate, channels, frames int) (Device, error) {
	paInitMu.Lock()
	if paInits == 0 {
		if err := portaudio.Initialize(); err != nil {
			paInitMu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrDeviceDenied, err)
		}
	}
	paInits++
	paInitMu.Unlock()

	buffer := make([]float32, frames*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), frames, buffer)
	if err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("%w: %v", ErrDeviceDenied, err)
	}

	return &portAudioDevice{stream: stream, buffer: buffer}, nil
}

func releasePortAudio() {
	paInitMu.Lock()
	defer paInitMu.Unlock()
	paInits--
	if paInits == 0 {
		_ = portaudio.Terminate()
	}
}

func (d *portAudioDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("device closed")
	}
	if d.started {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	d.started = true
	return nil
}

func (d *portAudioDevice) Read(buf []float32) error {
	if err := d.stream.Read(); err != nil {
		return fmt.Errorf("input stream read failed: %w", err)
	}
	copy(buf, d.buffer)
	return nil
}

func (d *portAudioDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started || d.closed {
		return nil
	}
	d.started = false
	return d.stream.Stop()
}

func (d *portAudioDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.started = false
	d.mu.Unlock()

	err := d.stream.Close()
	releasePortAudio()
	return err
}

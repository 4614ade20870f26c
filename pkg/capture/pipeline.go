// ABOUTME: Microphone capture pipeline
// ABOUTME: Reads fixed-size device frames, encodes PCM16 and emits chunks
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/pcm"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/resample"
)

const (
	// DefaultChunkFrames is the device frame size per delivered chunk.
	DefaultChunkFrames = 4096

	// DefaultSampleRate is the recommended speech capture rate.
	DefaultSampleRate = 16000
)

// Config configures a capture pipeline.
type Config struct {
	// Open acquires the input device. Required.
	Open Opener

	// SampleRate is the rate of emitted chunks (default 16000).
	SampleRate int

	// DeviceRate opens the device at a different native rate and
	// resamples down to SampleRate. Zero means capture directly at
	// SampleRate.
	DeviceRate int

	// Channels is the capture channel count (default 1).
	Channels int

	// ChunkFrames is the device frame size (default 4096).
	ChunkFrames int

	// Logger for drop/teardown events. Nil uses slog.Default().
	Logger *slog.Logger
}

// Stats reports capture progress counters.
type Stats struct {
	Frames  uint64  // device frames read
	Chunks  uint64  // chunks delivered
	Dropped uint64  // chunks discarded because the consumer was not ready
	Peak    float32 // peak amplitude of the most recent frame
}

// Pipeline pulls fixed-size frames from an input device, encodes them and
// pushes PCMChunks to its output channel. Delivery is best-effort: a chunk
// the consumer cannot accept immediately is dropped and counted, never
// queued. One pipeline owns one device.
type Pipeline struct {
	cfg Config
	log *slog.Logger
	out chan audio.PCMChunk

	mu      sync.Mutex
	device  Device
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
	seq     uint64
}

// New creates a capture pipeline. Defaults are applied here so the zero
// values of Config mean "speech capture".
func New(cfg Config) *Pipeline {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkFrames == 0 {
		cfg.ChunkFrames = DefaultChunkFrames
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		cfg: cfg,
		log: log,
		out: make(chan audio.PCMChunk, 8),
	}
}

// Chunks returns the output channel. It closes when capture ends.
func (p *Pipeline) Chunks() <-chan audio.PCMChunk {
	return p.out
}

// Start acquires the device and begins frame delivery. Only one Start per
// pipeline; a second call returns an error.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("capture already started")
	}
	if p.stopped {
		return fmt.Errorf("capture already stopped")
	}
	if p.cfg.Open == nil {
		return fmt.Errorf("no device opener configured")
	}

	deviceRate := p.cfg.DeviceRate
	if deviceRate == 0 {
		deviceRate = p.cfg.SampleRate
	}

	device, err := p.cfg.Open(deviceRate, p.cfg.Channels, p.cfg.ChunkFrames)
	if err != nil {
		return fmt.Errorf("failed to acquire input device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Close()
		return fmt.Errorf("%w: %v", ErrDeviceDenied, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.device = device
	p.cancel = cancel
	p.started = true

	var rs *resample.Resampler
	if deviceRate != p.cfg.SampleRate {
		rs = resample.New(deviceRate, p.cfg.SampleRate, p.cfg.Channels)
	}

	p.wg.Add(1)
	go p.run(runCtx, device, rs)

	return nil
}

// run is the capture loop. It exits on context cancellation or device
// failure and closes the output channel.
func (p *Pipeline) run(ctx context.Context, device Device, rs *resample.Resampler) {
	defer p.wg.Done()
	defer close(p.out)

	frame := make([]float32, p.cfg.ChunkFrames*p.cfg.Channels)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := device.Read(frame); err != nil {
			if ctx.Err() == nil && !p.isStopped() {
				p.log.Error("capture read failed", "error", err)
			}
			return
		}

		samples := frame
		if rs != nil {
			samples = rs.Resample(frame)
			if len(samples) == 0 {
				continue
			}
		}

		chunk := audio.PCMChunk{
			Data:       pcm.Encode(samples),
			SampleRate: p.cfg.SampleRate,
			Channels:   p.cfg.Channels,
		}

		p.statsMu.Lock()
		chunk.Seq = p.seq
		p.seq++
		p.stats.Frames++
		p.stats.Peak = framePeak(samples)
		p.statsMu.Unlock()

		select {
		case p.out <- chunk:
			p.statsMu.Lock()
			p.stats.Chunks++
			p.statsMu.Unlock()
		default:
			p.statsMu.Lock()
			p.stats.Dropped++
			dropped := p.stats.Dropped
			p.statsMu.Unlock()
			p.log.Warn("dropped capture chunk, consumer not ready", "seq", chunk.Seq, "dropped", dropped)
		}
	}
}

// Stop releases the device and ends delivery. Idempotent; Stop before
// Start is a no-op.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	device := p.device
	p.mu.Unlock()

	cancel()
	// Unblock any in-flight Read before waiting for the loop.
	if err := device.Stop(); err != nil {
		p.log.Warn("device stop failed", "error", err)
	}
	p.wg.Wait()

	if err := device.Close(); err != nil {
		p.log.Warn("device close failed", "error", err)
	}
}

// Stats returns a snapshot of capture counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pipeline) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func framePeak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// ABOUTME: Audio engine abstraction over the oto output device
// ABOUTME: Pulls rendered frames from a reader and hands them to hardware
package playback

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

// Engine drives an output device from a stream of signed 16-bit
// little-endian frames. Implementations pull from the source on their own
// schedule; the source must never block.
type Engine interface {
	// Start begins pulling from src. Calling Start twice is an error.
	Start(src io.Reader) error

	// Close stops playback and releases the device. Idempotent.
	Close() error
}

// EngineBufferDuration is the amount of rendered audio the device buffers
// ahead of the hardware clock.
const EngineBufferDuration = 100 * time.Millisecond

// The process gets exactly one oto context. Creating a second engine with
// a different format fails rather than silently resampling.
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

func otoContext(format audio.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat.SampleRate != format.SampleRate || otoFormat.Channels != format.Channels {
			return nil, fmt.Errorf("audio context already open at %dHz/%dch, cannot reopen at %dHz/%dch",
				otoFormat.SampleRate, otoFormat.Channels, format.SampleRate, format.Channels)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}

// OtoEngine plays through the system output device using oto.
type OtoEngine struct {
	format audio.Format

	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	started bool
	closed  bool
	volume  float64
}

// NewOtoEngine creates an engine for the given output format. The device
// is not touched until Start.
func NewOtoEngine(format audio.Format) (*OtoEngine, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine format: %w", err)
	}
	return &OtoEngine{format: format, volume: 1.0}, nil
}

// Start opens the shared audio context and begins pulling from src.
func (e *OtoEngine) Start(src io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine already closed")
	}
	if e.started {
		return fmt.Errorf("engine already started")
	}

	ctx, err := otoContext(e.format)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("failed to resume audio context: %w", err)
	}

	player := ctx.NewPlayer(src)
	bufBytes := int(EngineBufferDuration.Seconds() * float64(e.format.SampleRate))
	player.SetBufferSize(bufBytes * e.format.FrameBytes())
	player.SetVolume(e.volume)
	player.Play()

	e.ctx = ctx
	e.player = player
	e.started = true
	return nil
}

// SetVolume adjusts output gain in [0, 1]. Takes effect immediately when
// playing, otherwise on the next Start.
func (e *OtoEngine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
	if e.player != nil {
		e.player.SetVolume(v)
	}
}

// Close stops the player and suspends the shared context so the device
// releases cleanly. The context itself stays alive for the process.
func (e *OtoEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.player != nil {
		if err := e.player.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close player: %w", err))
		}
		e.player = nil
	}
	if e.ctx != nil {
		if err := e.ctx.Suspend(); err != nil {
			errs = append(errs, fmt.Errorf("failed to suspend audio context: %w", err))
		}
		e.ctx = nil
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

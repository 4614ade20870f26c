// ABOUTME: Bidirectional speech session tying capture, transport and playback
// ABOUTME: One run goroutine owns all state transitions and teardown
package vocalis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/capture"
	"github.com/Vocalis-Audio/vocalis-go/pkg/playback"
	"github.com/Vocalis-Audio/vocalis-go/pkg/protocol"
)

// Wire identity sent in session/start.
const (
	product         = "Vocalis"
	softwareVersion = "0.3.0"
)

const statusBuffer = 16

// Config holds session configuration.
type Config struct {
	// Endpoint is the speech service URL (ws://, wss:// or nats://).
	Endpoint string

	// Name is the display name for this session.
	Name string

	// SessionID overrides the generated session identifier.
	SessionID string

	// SampleRate is the uplink mic rate in Hz (default 16000).
	SampleRate int

	// Channels is the uplink channel count (default 1).
	Channels int

	// ChunkFrames is the mic chunk size in frames (default 4096).
	ChunkFrames int

	// DeviceRate is the hardware capture rate when it differs from
	// SampleRate; the capture pipeline resamples.
	DeviceRate int

	// Volume is the initial playback volume, 0-100 (default 100).
	Volume int

	// Formats lists playable downlink formats in preference order.
	// Empty advertises pcm16 at 24 kHz mono.
	Formats []protocol.AudioFormat

	// OpenDevice acquires the capture device (default: PortAudio).
	OpenDevice capture.Opener

	// NewEngine builds the playback engine for the negotiated format
	// (default: the oto engine).
	NewEngine func(format audio.Format) (playback.Engine, error)

	// DialTransport builds the transport (default: protocol.Dial).
	DialTransport func(endpoint string, opts protocol.Options) (protocol.Transport, error)

	// OnDownlink observes every downlink chunk before scheduling, e.g.
	// for WAV export. Data is raw wire payload in the negotiated codec.
	// Called from the session goroutine; keep it fast.
	OnDownlink func(chunk audio.PCMChunk)

	// Logger for session events. Nil uses slog.Default().
	Logger *slog.Logger
}

// Session is one live conversation with a speech service: microphone
// chunks stream out, synthesized speech streams in and plays gaplessly,
// and interruptions cut playback mid-word. A session runs at most once.
type Session struct {
	cfg      Config
	log      *slog.Logger
	pipeline *capture.Pipeline

	mu         sync.Mutex
	state      State
	reason     FailureReason
	err        error
	transport  protocol.Transport
	scheduler  *playback.Scheduler
	engine     playback.Engine
	volume     int
	started    bool
	sent       uint64
	interrupts uint64
	cancel     context.CancelFunc

	status      chan StatusEvent
	interruptCh chan string
	done        chan struct{}
}

// New creates a session. Nothing touches the microphone or the network
// until Start.
func New(cfg Config) (*Session, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = capture.DefaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkFrames == 0 {
		cfg.ChunkFrames = capture.DefaultChunkFrames
	}
	if cfg.Volume == 0 {
		cfg.Volume = 100
	}
	if cfg.OpenDevice == nil {
		cfg.OpenDevice = capture.OpenPortAudio
	}
	if cfg.NewEngine == nil {
		cfg.NewEngine = func(format audio.Format) (playback.Engine, error) {
			return playback.NewOtoEngine(format)
		}
	}
	if cfg.DialTransport == nil {
		cfg.DialTransport = protocol.Dial
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pipeline := capture.New(capture.Config{
		Open:        cfg.OpenDevice,
		SampleRate:  cfg.SampleRate,
		DeviceRate:  cfg.DeviceRate,
		Channels:    cfg.Channels,
		ChunkFrames: cfg.ChunkFrames,
		Logger:      cfg.Logger,
	})

	return &Session{
		cfg:         cfg,
		log:         cfg.Logger,
		pipeline:    pipeline,
		state:       StateIdle,
		volume:      cfg.Volume,
		status:      make(chan StatusEvent, statusBuffer),
		interruptCh: make(chan string, 1),
		done:        make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.cfg.SessionID
}

// Start acquires the microphone, connects the transport and begins
// streaming. It returns once the session is underway; progress and
// failures arrive on Updates. Canceling ctx stops the session like Stop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.setStateLocked(StateConnecting, ReasonNone, nil)
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop ends the session and blocks until teardown completes. Stopping a
// session that never started, or stopping twice, is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-s.done
}

// Interrupt cuts current playback locally, exactly as a remote
// speech/interrupt would. Safe at any time, including with nothing
// playing.
func (s *Session) Interrupt() {
	select {
	case s.interruptCh <- "local":
	default:
	}
}

// SetVolume adjusts playback volume in [0, 100].
func (s *Session) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	s.mu.Lock()
	s.volume = volume
	engine := s.engine
	s.mu.Unlock()

	if oto, ok := engine.(*playback.OtoEngine); ok {
		oto.SetVolume(float64(volume) / 100)
	}
}

// Volume returns the current playback volume in [0, 100].
func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Updates returns the status channel. Every state transition lands here
// with a stats snapshot; the channel closes after the terminal event.
func (s *Session) Updates() <-chan StatusEvent {
	return s.status
}

// State returns the current state and, when failed, the reason.
func (s *Session) State() (State, FailureReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// Err returns the failure cause, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a counter snapshot.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// Tap copies the most recent rendered output frames for visualization.
// Returns 0 before playback starts.
func (s *Session) Tap(dst []float32) int {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()

	if sched == nil {
		return 0
	}
	return sched.Tap(dst)
}

// Format returns the negotiated downlink format. The second result is
// false until the session/ready handshake completes.
func (s *Session) Format() (audio.Format, bool) {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()

	if sched == nil {
		return audio.Format{}, false
	}
	return sched.Format(), true
}

// run is the session goroutine: it owns every state transition from
// Connecting to the terminal state, consumes transport events and
// forwards mic chunks.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	if err := s.pipeline.Start(ctx); err != nil {
		s.fail(err, ReasonDeviceDenied)
		return
	}

	transport, err := s.cfg.DialTransport(s.cfg.Endpoint, protocol.Options{
		SessionID: s.cfg.SessionID,
		Name:      s.cfg.Name,
		Product:   product,
		Version:   softwareVersion,
		Uplink: protocol.AudioFormat{
			Codec:      "pcm16",
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			BitDepth:   16,
		},
		Formats: s.cfg.Formats,
		Logger:  s.log,
	})
	if err != nil {
		s.fail(err, ReasonConnectFailed)
		return
	}
	s.mu.Lock()
	s.transport = transport
	s.mu.Unlock()

	if err := transport.Connect(ctx); err != nil {
		s.fail(err, ReasonConnectFailed)
		return
	}

	events := transport.Events()
	chunks := s.pipeline.Chunks()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session stopped", "session", s.cfg.SessionID)
			s.setState(StateClosed, ReasonNone, nil)
			return

		case reason := <-s.interruptCh:
			s.handleInterrupt(reason)

		case ev, ok := <-events:
			if !ok {
				s.setState(StateClosed, ReasonNone, nil)
				return
			}
			if s.handleEvent(ev) {
				return
			}

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if !s.forward(chunk) {
				return
			}
		}
	}
}

// handleEvent reacts to one transport event and reports whether the
// session is over.
func (s *Session) handleEvent(ev protocol.Event) bool {
	switch ev.Type {
	case protocol.EventOpen:
		return s.handleOpen(ev.Format)

	case protocol.EventAudio:
		s.handleAudio(ev)

	case protocol.EventInterrupt:
		s.handleInterrupt(ev.Reason)

	case protocol.EventClosed:
		s.log.Info("session ended by peer", "reason", ev.Reason)
		s.setState(StateClosed, ReasonNone, nil)
		return true

	case protocol.EventError:
		s.fail(ev.Err, ReasonConnectionLost)
		return true
	}
	return false
}

// handleOpen builds the playback graph for the negotiated format and
// enters Streaming.
func (s *Session) handleOpen(wire protocol.AudioFormat) bool {
	s.mu.Lock()
	if s.scheduler != nil {
		s.mu.Unlock()
		s.log.Warn("duplicate session/ready ignored")
		return false
	}
	s.mu.Unlock()

	format := wire.Format()
	sched, err := playback.NewScheduler(playback.Config{
		Format: format,
		Logger: s.log,
	})
	if err != nil {
		s.fail(fmt.Errorf("cannot play negotiated format: %w", err), ReasonInternal)
		return true
	}

	engine, err := s.cfg.NewEngine(format)
	if err != nil {
		sched.Close()
		s.fail(fmt.Errorf("failed to create audio engine: %w", err), ReasonInternal)
		return true
	}
	if err := engine.Start(sched); err != nil {
		sched.Close()
		s.fail(fmt.Errorf("failed to start audio engine: %w", err), ReasonInternal)
		return true
	}

	s.mu.Lock()
	s.scheduler = sched
	s.engine = engine
	volume := s.volume
	s.mu.Unlock()

	if oto, ok := engine.(*playback.OtoEngine); ok {
		oto.SetVolume(float64(volume) / 100)
	}

	s.log.Info("session streaming",
		"codec", format.Codec, "rate", format.SampleRate, "channels", format.Channels)
	s.setState(StateStreaming, ReasonNone, nil)
	return false
}

// handleAudio schedules one downlink chunk. A bad chunk never kills the
// stream.
func (s *Session) handleAudio(ev protocol.Event) {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()

	if sched == nil {
		s.log.Warn("downlink chunk before session/ready", "seq", ev.Seq)
		return
	}

	if s.cfg.OnDownlink != nil {
		format := sched.Format()
		s.cfg.OnDownlink(audio.PCMChunk{
			Data:       ev.Data,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Seq:        ev.Seq,
		})
	}

	if _, err := sched.Schedule(ev.Data, ev.Seq); err != nil {
		s.log.Warn("chunk skipped", "seq", ev.Seq, "error", err)
	}
}

// handleInterrupt cuts playback. Interrupted is momentary: the session
// re-enters Streaming in the same breath, and both transitions land on
// the status channel.
func (s *Session) handleInterrupt(reason string) {
	s.mu.Lock()
	sched := s.scheduler
	streaming := s.state == StateStreaming || s.state == StateInterrupted
	if streaming {
		s.interrupts++
	}
	s.mu.Unlock()

	if !streaming {
		return
	}
	if sched != nil {
		sched.Interrupt()
	}

	s.log.Debug("playback interrupted", "reason", reason)
	s.setState(StateInterrupted, ReasonNone, nil)
	s.setState(StateStreaming, ReasonNone, nil)
}

// forward sends one mic chunk uplink. Chunks captured before the
// handshake completes are warmup and get dropped.
func (s *Session) forward(chunk audio.PCMChunk) bool {
	s.mu.Lock()
	streaming := s.state == StateStreaming || s.state == StateInterrupted
	transport := s.transport
	s.mu.Unlock()

	if !streaming {
		return true
	}

	if err := transport.Send(chunk); err != nil {
		s.fail(fmt.Errorf("uplink send failed: %w", err), ReasonConnectionLost)
		return false
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return true
}

func (s *Session) fail(err error, fallback FailureReason) {
	reason := Classify(err)
	if reason == ReasonNone {
		reason = fallback
	}
	s.log.Error("session failed", "reason", string(reason), "error", err)
	s.setState(StateFailed, reason, err)
}

func (s *Session) setState(state State, reason FailureReason, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(state, reason, err)
}

// setStateLocked records a transition and publishes it. Terminal states
// are sticky; the status send never blocks the session goroutine.
func (s *Session) setStateLocked(state State, reason FailureReason, err error) {
	if s.state.Terminal() {
		return
	}
	s.state = state
	if state == StateFailed {
		s.reason = reason
		s.err = err
	}

	ev := StatusEvent{State: state, Reason: reason, Err: err, Stats: s.statsLocked()}
	select {
	case s.status <- ev:
	default:
	}
}

func (s *Session) statsLocked() Stats {
	stats := Stats{
		ChunksSent: s.sent,
		Interrupts: s.interrupts,
	}

	cs := s.pipeline.Stats()
	stats.CaptureFrames = cs.Frames
	stats.CaptureDropped = cs.Dropped
	stats.InputPeak = cs.Peak

	if s.scheduler != nil {
		ps := s.scheduler.Stats()
		stats.ChunksReceived = ps.Received
		stats.ChunksSkipped = ps.Skipped
		stats.ChunksPlayed = ps.Finished
		stats.Gaps = ps.Gaps
		stats.GapFrames = ps.GapFrames
	}
	return stats
}

// teardown releases everything exactly once, in dependency order: the
// mic first, then the transport goodbye, then the audio graph. It runs
// on the session goroutine after the final state is set.
func (s *Session) teardown() {
	s.pipeline.Stop()

	s.mu.Lock()
	transport := s.transport
	engine := s.engine
	sched := s.scheduler
	s.mu.Unlock()

	if transport != nil {
		if err := transport.Close(); err != nil {
			s.log.Warn("transport close failed", "error", err)
		}
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			s.log.Warn("engine close failed", "error", err)
		}
	}
	if sched != nil {
		if err := sched.Close(); err != nil {
			s.log.Warn("scheduler close failed", "error", err)
		}
	}

	// A path that never set a terminal state still ends Closed.
	s.setState(StateClosed, ReasonNone, nil)
	close(s.status)
}

// ABOUTME: Tests for the session lifecycle
// ABOUTME: Uses fake device, transport and engine for hardware-free runs
package vocalis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/capture"
	"github.com/Vocalis-Audio/vocalis-go/pkg/playback"
	"github.com/Vocalis-Audio/vocalis-go/pkg/protocol"
)

// pacedDevice yields one quiet frame per millisecond until stopped, like
// real hardware with a slow clock.
type pacedDevice struct {
	startErr error
	stopped  chan struct{}
	stopOnce sync.Once
}

func newPacedDevice() *pacedDevice {
	return &pacedDevice{stopped: make(chan struct{})}
}

func (d *pacedDevice) Start() error {
	return d.startErr
}

func (d *pacedDevice) Read(buf []float32) error {
	select {
	case <-d.stopped:
		return errors.New("stream stopped")
	case <-time.After(time.Millisecond):
	}
	for i := range buf {
		buf[i] = 0.25
	}
	return nil
}

func (d *pacedDevice) Stop() error {
	d.stopOnce.Do(func() { close(d.stopped) })
	return nil
}

func (d *pacedDevice) Close() error { return nil }

// fakeTransport records sends and lets tests inject inbound events.
type fakeTransport struct {
	events chan protocol.Event

	mu         sync.Mutex
	sent       []audio.PCMChunk
	connectErr error
	sendErr    error
	connects   int
	closes     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan protocol.Event, 16)}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	return t.connectErr
}

func (t *fakeTransport) Send(chunk audio.PCMChunk) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, chunk)
	return nil
}

func (t *fakeTransport) Events() <-chan protocol.Event { return t.events }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *fakeTransport) sendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *fakeTransport) firstSent() audio.PCMChunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent[0]
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// fakeEngine stands in for the oto engine.
type fakeEngine struct {
	mu     sync.Mutex
	src    io.Reader
	starts int
	closes int
}

func (e *fakeEngine) Start(src io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = src
	e.starts++
	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	return nil
}

func (e *fakeEngine) source() io.Reader {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, transport protocol.Transport, mutate ...func(*Config)) *Session {
	t.Helper()

	cfg := Config{
		Endpoint:    "ws://speech.test:8931/vocalis",
		Name:        "test",
		ChunkFrames: 64,
		OpenDevice: func(rate, channels, frames int) (capture.Device, error) {
			return newPacedDevice(), nil
		},
		NewEngine: func(format audio.Format) (playback.Engine, error) {
			return &fakeEngine{}, nil
		},
		DialTransport: func(endpoint string, opts protocol.Options) (protocol.Transport, error) {
			return transport, nil
		},
		Logger: quietLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	session, err := New(cfg)
	require.NoError(t, err)
	return session
}

func readyEvent() protocol.Event {
	return protocol.Event{
		Type: protocol.EventOpen,
		Format: protocol.AudioFormat{
			Codec: "pcm16", SampleRate: 24000, Channels: 1, BitDepth: 16,
		},
	}
}

// nextUpdate reads one status event or fails the test.
func nextUpdate(t *testing.T, updates <-chan StatusEvent) StatusEvent {
	t.Helper()
	select {
	case ev, ok := <-updates:
		require.True(t, ok, "status channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status event")
		return StatusEvent{}
	}
}

// drainUpdates collects events until the channel closes.
func drainUpdates(t *testing.T, updates <-chan StatusEvent) []StatusEvent {
	t.Helper()
	var events []StatusEvent
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-updates:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for status channel to close")
		}
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestNewGeneratesDistinctSessionIDs(t *testing.T) {
	a := newTestSession(t, newFakeTransport())
	b := newTestSession(t, newFakeTransport())

	assert.NotEmpty(t, a.ID())
	assert.NotEmpty(t, b.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	c := newTestSession(t, newFakeTransport(), func(c *Config) { c.SessionID = "fixed" })
	assert.Equal(t, "fixed", c.ID())
}

func TestSessionLifecycle(t *testing.T) {
	transport := newFakeTransport()
	engine := &fakeEngine{}
	session := newTestSession(t, transport, func(c *Config) {
		c.NewEngine = func(format audio.Format) (playback.Engine, error) {
			assert.Equal(t, 24000, format.SampleRate)
			return engine, nil
		}
	})

	require.NoError(t, session.Start(context.Background()))

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)

	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	state, reason := session.State()
	assert.Equal(t, StateStreaming, state)
	assert.Equal(t, ReasonNone, reason)
	assert.NotNil(t, engine.source(), "engine should pull from the scheduler")

	session.Stop()

	events := drainUpdates(t, updates)
	require.NotEmpty(t, events)
	assert.Equal(t, StateClosed, events[len(events)-1].State)
	assert.GreaterOrEqual(t, transport.closeCount(), 1)
}

func TestStartTwiceFails(t *testing.T) {
	session := newTestSession(t, newFakeTransport())

	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	assert.ErrorIs(t, session.Start(context.Background()), ErrAlreadyStarted)
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	session := newTestSession(t, newFakeTransport())
	session.Stop()

	state, _ := session.State()
	assert.Equal(t, StateIdle, state)
}

func TestStopIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))
	transport.events <- readyEvent()

	session.Stop()
	session.Stop()

	state, _ := session.State()
	assert.Equal(t, StateClosed, state)
}

func TestUplinkGatedOnHandshake(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)

	// Mic chunks before the handshake are warmup and must be dropped.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, transport.sendCount())

	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	require.Eventually(t, func() bool { return transport.sendCount() > 0 },
		2*time.Second, 5*time.Millisecond)

	chunk := transport.firstSent()
	assert.Equal(t, 16000, chunk.SampleRate)
	assert.Equal(t, 1, chunk.Channels)
	assert.NotEmpty(t, chunk.Data)

	assert.Greater(t, session.Stats().ChunksSent, uint64(0))
}

func TestRemoteInterrupt(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	transport.events <- protocol.Event{Type: protocol.EventInterrupt, Reason: "barge_in"}

	interrupted := nextUpdate(t, updates)
	assert.Equal(t, StateInterrupted, interrupted.State)
	assert.Equal(t, uint64(1), interrupted.Stats.Interrupts)
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)
}

func TestLocalInterrupt(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	session.Interrupt()

	assert.Equal(t, StateInterrupted, nextUpdate(t, updates).State)
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)
	assert.Equal(t, uint64(1), session.Stats().Interrupts)
}

func TestInterruptBeforeStreamingIsIgnored(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)

	session.Interrupt()
	time.Sleep(10 * time.Millisecond)

	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)
	assert.Equal(t, uint64(0), session.Stats().Interrupts)
}

func TestServerEndClosesSession(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	transport.events <- protocol.Event{Type: protocol.EventClosed, Reason: "shutdown"}

	events := drainUpdates(t, updates)
	require.NotEmpty(t, events)
	assert.Equal(t, StateClosed, events[len(events)-1].State)

	// Stop after the session already ended must not hang.
	session.Stop()
}

func TestEventsChannelCloseEndsSession(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	close(transport.events)

	events := drainUpdates(t, updates)
	require.NotEmpty(t, events)
	assert.Equal(t, StateClosed, events[len(events)-1].State)
	session.Stop()
}

func TestTransportErrorFailsSession(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	transport.events <- protocol.Event{
		Type: protocol.EventError,
		Err:  errors.New("connection lost: read tcp: connection reset"),
	}

	events := drainUpdates(t, updates)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, ReasonConnectionLost, last.Reason)
	require.Error(t, session.Err())
	session.Stop()
}

func TestRateLimitIsClassified(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	transport.events <- protocol.Event{
		Type: protocol.EventError,
		Err:  errors.New("server error 429: quota exhausted"),
	}

	events := drainUpdates(t, updates)
	last := events[len(events)-1]
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, ReasonRateLimited, last.Reason)
	session.Stop()
}

func TestDeviceDeniedFailsSession(t *testing.T) {
	transport := newFakeTransport()
	var dials int
	session := newTestSession(t, transport, func(c *Config) {
		c.OpenDevice = func(rate, channels, frames int) (capture.Device, error) {
			dev := newPacedDevice()
			dev.startErr = errors.New("permission denied")
			return dev, nil
		}
		dial := c.DialTransport
		c.DialTransport = func(endpoint string, opts protocol.Options) (protocol.Transport, error) {
			dials++
			return dial(endpoint, opts)
		}
	})

	require.NoError(t, session.Start(context.Background()))

	events := drainUpdates(t, session.Updates())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, ReasonDeviceDenied, last.Reason)
	assert.Equal(t, 0, dials, "transport should not be dialed without a mic")
}

func TestDialFailureFailsSession(t *testing.T) {
	session := newTestSession(t, nil, func(c *Config) {
		c.DialTransport = func(endpoint string, opts protocol.Options) (protocol.Transport, error) {
			return nil, errors.New("unsupported endpoint scheme")
		}
	})

	require.NoError(t, session.Start(context.Background()))

	events := drainUpdates(t, session.Updates())
	last := events[len(events)-1]
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, ReasonConnectFailed, last.Reason)
}

func TestConnectFailureFailsSession(t *testing.T) {
	transport := newFakeTransport()
	transport.connectErr = errors.New("dial speech.test failed: connection refused")
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))

	events := drainUpdates(t, session.Updates())
	last := events[len(events)-1]
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, ReasonConnectFailed, last.Reason)
	assert.GreaterOrEqual(t, transport.closeCount(), 1)
}

func TestSendFailureFailsSession(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("write tcp: broken pipe")
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	events := drainUpdates(t, updates)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, ReasonConnectionLost, last.Reason)
}

func TestOnDownlinkObservesChunks(t *testing.T) {
	transport := newFakeTransport()

	var mu sync.Mutex
	var seen []audio.PCMChunk
	session := newTestSession(t, transport, func(c *Config) {
		c.OnDownlink = func(chunk audio.PCMChunk) {
			mu.Lock()
			seen = append(seen, chunk)
			mu.Unlock()
		}
	})

	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	payload := make([]byte, 960)
	transport.events <- protocol.Event{Type: protocol.EventAudio, Seq: 5, Data: payload}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	chunk := seen[0]
	mu.Unlock()
	assert.Equal(t, uint64(5), chunk.Seq)
	assert.Equal(t, 24000, chunk.SampleRate)
	assert.Len(t, chunk.Data, 960)

	assert.Equal(t, uint64(1), session.Stats().ChunksReceived)
}

func TestDownlinkBeforeReadyIsDropped(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)

	transport.events <- protocol.Event{Type: protocol.EventAudio, Seq: 1, Data: make([]byte, 64)}
	time.Sleep(10 * time.Millisecond)

	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)
	assert.Equal(t, uint64(0), session.Stats().ChunksReceived)
}

func TestSetVolumeClamps(t *testing.T) {
	session := newTestSession(t, newFakeTransport())

	session.SetVolume(250)
	assert.Equal(t, 100, session.Volume())

	session.SetVolume(-10)
	assert.Equal(t, 0, session.Volume())

	session.SetVolume(55)
	assert.Equal(t, 55, session.Volume())
}

func TestTapBeforePlaybackReturnsZero(t *testing.T) {
	session := newTestSession(t, newFakeTransport())
	assert.Equal(t, 0, session.Tap(make([]float32, 16)))
}

func TestContextCancelStopsSession(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, session.Start(ctx))

	updates := session.Updates()
	assert.Equal(t, StateConnecting, nextUpdate(t, updates).State)
	transport.events <- readyEvent()
	assert.Equal(t, StateStreaming, nextUpdate(t, updates).State)

	cancel()

	events := drainUpdates(t, updates)
	require.NotEmpty(t, events)
	assert.Equal(t, StateClosed, events[len(events)-1].State)
}

// ABOUTME: NATS relay transport for Vocalis sessions
// ABOUTME: Maps the session wire protocol onto broker subjects
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

const natsConnectTimeout = 10 * time.Second

// SubjectUplink names the microphone audio subject for a session.
func SubjectUplink(sessionID string) string {
	return "vocalis." + sessionID + ".uplink"
}

// SubjectDownlink names the synthesized audio subject for a session.
func SubjectDownlink(sessionID string) string {
	return "vocalis." + sessionID + ".downlink"
}

// SubjectControl names the control subject for a session. Both sides
// publish here; each ignores its own message types.
func SubjectControl(sessionID string) string {
	return "vocalis." + sessionID + ".control"
}

// NATS relays a session through a broker instead of a direct socket.
// Audio frames keep the same binary layout as the WebSocket transport;
// control messages travel as JSON on the control subject.
type NATS struct {
	endpoint string
	opts     Options
	log      *slog.Logger

	mu        sync.Mutex
	nc        *nats.Conn
	subs      []*nats.Subscription
	connected bool
	closed    bool

	events chan Event
	done   chan struct{}
}

// NewNATS creates an unconnected NATS transport.
func NewNATS(endpoint string, opts Options) *NATS {
	opts = opts.withDefaults()
	return &NATS{
		endpoint: endpoint,
		opts:     opts,
		log:      opts.Logger,
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Connect dials the broker, subscribes to the session subjects and
// publishes session/start. No reconnect: a lost broker connection
// surfaces as an event.
func (t *NATS) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	if t.connected {
		t.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	name := t.opts.Name
	if name == "" {
		name = "vocalis-client"
	}

	nc, err := nats.Connect(t.endpoint,
		nats.Name(name),
		nats.NoReconnect(),
		nats.Timeout(natsConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.emit(Event{Type: EventError, Err: fmt.Errorf("broker connection lost: %w", err)})
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			t.emit(Event{Type: EventClosed, Reason: "broker connection closed"})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			t.log.Warn("broker error", "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", t.endpoint, err)
	}

	id := t.opts.SessionID
	subDown, err := nc.Subscribe(SubjectDownlink(id), func(m *nats.Msg) {
		routeFrame(m.Data, t.log, t.emit)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectDownlink(id), err)
	}
	subCtl, err := nc.Subscribe(SubjectControl(id), func(m *nats.Msg) {
		routeControl(m.Data, t.log, t.emit)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectControl(id), err)
	}

	start := SessionStart{
		SessionID: id,
		Name:      t.opts.Name,
		Product:   t.opts.Product,
		Version:   t.opts.Version,
		Uplink:    t.opts.Uplink,
		Formats:   t.opts.Formats,
	}
	if err := publishControl(nc, id, TypeSessionStart, start); err != nil {
		nc.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		nc.Close()
		return fmt.Errorf("transport closed")
	}
	t.nc = nc
	t.subs = []*nats.Subscription{subDown, subCtl}
	t.connected = true
	t.mu.Unlock()

	t.log.Debug("connected to broker", "endpoint", t.endpoint, "session", id)
	return nil
}

// Send publishes one microphone chunk on the uplink subject.
func (t *NATS) Send(chunk audio.PCMChunk) error {
	t.mu.Lock()
	nc := t.nc
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return fmt.Errorf("not connected")
	}
	return nc.Publish(SubjectUplink(t.opts.SessionID), EncodeFrame(FrameUplink, chunk.Seq, chunk.Data))
}

// Events delivers inbound events. The channel stays open; shutdown is
// reported as an EventClosed or EventError.
func (t *NATS) Events() <-chan Event {
	return t.events
}

// Close publishes session/end, drops the subscriptions and closes the
// broker connection. Idempotent.
func (t *NATS) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	nc := t.nc
	subs := t.subs
	t.connected = false
	t.mu.Unlock()

	if nc != nil && !nc.IsClosed() {
		_ = publishControl(nc, t.opts.SessionID, TypeSessionEnd, SessionEnd{Reason: "user_request"})
		_ = nc.FlushTimeout(closeWriteWait)
	}

	close(t.done)
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if nc != nil {
		nc.Close()
	}
	return nil
}

func (t *NATS) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func publishControl(nc *nats.Conn, sessionID, msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msgType, err)
	}
	return nc.Publish(SubjectControl(sessionID), data)
}

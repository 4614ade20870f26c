// ABOUTME: WebSocket transport for Vocalis sessions
// ABOUTME: Handles connection, handshake, and message routing
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

const closeWriteWait = time.Second

// WebSocket speaks the Vocalis protocol over a single WebSocket
// connection: JSON text messages for control and binary frames for audio.
type WebSocket struct {
	endpoint string
	opts     Options
	log      *slog.Logger

	mu        sync.Mutex // guards conn, flags and all writes
	conn      *websocket.Conn
	connected bool
	closed    bool

	events chan Event
	done   chan struct{}
}

// NewWebSocket creates an unconnected WebSocket transport.
func NewWebSocket(endpoint string, opts Options) *WebSocket {
	opts = opts.withDefaults()
	return &WebSocket{
		endpoint: endpoint,
		opts:     opts,
		log:      opts.Logger,
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Connect dials the endpoint and sends session/start. The server answers
// with session/ready, which arrives as an EventOpen.
func (t *WebSocket) Connect(ctx context.Context) error {
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

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", t.endpoint, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}

	t.log.Debug("connecting", "url", u.String())
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s failed: %w (status %s)", u.Host, err, resp.Status)
		}
		return fmt.Errorf("dial %s failed: %w", u.Host, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport closed")
	}
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	start := SessionStart{
		SessionID: t.opts.SessionID,
		Name:      t.opts.Name,
		Product:   t.opts.Product,
		Version:   t.opts.Version,
		Uplink:    t.opts.Uplink,
		Formats:   t.opts.Formats,
	}
	if err := t.sendJSON(TypeSessionStart, start); err != nil {
		t.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go t.readLoop()
	return nil
}

// Send streams one microphone chunk as a binary uplink frame.
func (t *WebSocket) Send(chunk audio.PCMChunk) error {
	frame := EncodeFrame(FrameUplink, chunk.Seq, chunk.Data)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("not connected")
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Events delivers inbound events. The channel closes when the read loop
// exits.
func (t *WebSocket) Events() <-chan Event {
	return t.events
}

// Close sends session/end when the wire still allows it and tears the
// connection down. Idempotent.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)

	var err error
	if t.conn != nil {
		if msg, merr := NewMessage(TypeSessionEnd, SessionEnd{Reason: "user_request"}); merr == nil {
			t.conn.SetWriteDeadline(time.Now().Add(closeWriteWait))
			_ = t.conn.WriteJSON(msg)
		}
		err = t.conn.Close()
	}
	t.connected = false
	return err
}

func (t *WebSocket) sendJSON(msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("not connected")
	}
	return t.conn.WriteJSON(msg)
}

func (t *WebSocket) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// readLoop routes inbound messages until the connection dies or the peer
// ends the session.
func (t *WebSocket) readLoop() {
	defer close(t.events)

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				// Deliberate close, nothing to report.
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					t.emit(Event{Type: EventClosed, Reason: "server closed"})
				} else {
					t.emit(Event{Type: EventError, Err: fmt.Errorf("connection lost: %w", err)})
				}
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			routeFrame(data, t.log, t.emit)
		case websocket.TextMessage:
			if routeControl(data, t.log, t.emit) {
				return
			}
		default:
			t.log.Warn("unexpected websocket message type", "type", messageType)
		}
	}
}

// ABOUTME: Tests for the WebSocket transport
// ABOUTME: Runs a full session flow against an in-process test server
package protocol

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func sendControl(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteJSON(msg))
}

// wsEndpoint rewrites an httptest server URL into a ws:// endpoint.
func wsEndpoint(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSessionFlow(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ready := AudioFormat{Codec: "pcm16", SampleRate: 24000, Channels: 1, BitDepth: 16}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultPath, r.URL.Path)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: session/start arrives first.
		var msg Message
		assert.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, TypeSessionStart, msg.Type)

		var start SessionStart
		assert.NoError(t, msg.Decode(&start))
		assert.Equal(t, "kitchen", start.Name)
		assert.NotEmpty(t, start.SessionID)
		assert.NotEmpty(t, start.Formats)

		sendControl(t, conn, TypeSessionReady, SessionReady{
			SessionID:  start.SessionID,
			ServerName: "dev",
			Format:     ready,
		})

		// One uplink chunk from the client.
		mt, frame, err := conn.ReadMessage()
		assert.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, mt)
		kind, seq, payload, err := DecodeFrame(frame)
		assert.NoError(t, err)
		assert.Equal(t, FrameUplink, kind)
		assert.Equal(t, uint64(3), seq)
		assert.Equal(t, []byte{0x10, 0x20}, payload)

		// Downlink audio, an interrupt, then an orderly end.
		assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
			EncodeFrame(FrameDownlink, 7, []byte{1, 2, 3, 4})))
		sendControl(t, conn, TypeSpeechInterrupt, SpeechInterrupt{Reason: "barge_in"})
		sendControl(t, conn, TypeSessionEnd, SessionEnd{Reason: "shutdown"})
	}))
	defer srv.Close()

	transport := NewWebSocket(wsEndpoint(srv), Options{Name: "kitchen"})
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	require.NoError(t, transport.Send(audio.PCMChunk{
		Data: []byte{0x10, 0x20}, SampleRate: 16000, Channels: 1, Seq: 3,
	}))

	ev := nextEvent(t, transport.Events())
	require.Equal(t, EventOpen, ev.Type)
	assert.Equal(t, ready, ev.Format)

	ev = nextEvent(t, transport.Events())
	require.Equal(t, EventAudio, ev.Type)
	assert.Equal(t, uint64(7), ev.Seq)
	assert.Equal(t, []byte{1, 2, 3, 4}, ev.Data)

	ev = nextEvent(t, transport.Events())
	require.Equal(t, EventInterrupt, ev.Type)
	assert.Equal(t, "barge_in", ev.Reason)

	ev = nextEvent(t, transport.Events())
	require.Equal(t, EventClosed, ev.Type)
	assert.Equal(t, "shutdown", ev.Reason)

	select {
	case _, ok := <-transport.Events():
		assert.False(t, ok, "event channel should close after session/end")
	case <-time.After(2 * time.Second):
		t.Fatal("event channel did not close")
	}
}

func TestWebSocketServerErrorSurfaces(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg Message
		assert.NoError(t, conn.ReadJSON(&msg))
		sendControl(t, conn, TypeSessionError, SessionError{
			Code:    "rate_limited",
			Message: "quota exceeded (429)",
		})
	}))
	defer srv.Close()

	transport := NewWebSocket(wsEndpoint(srv), Options{})
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	ev := nextEvent(t, transport.Events())
	require.Equal(t, EventError, ev.Type)
	require.Error(t, ev.Err)
	assert.Contains(t, ev.Err.Error(), "429")
	assert.Contains(t, ev.Err.Error(), "rate_limited")
}

func TestWebSocketConnectionLossSurfaces(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var msg Message
		assert.NoError(t, conn.ReadJSON(&msg))
		// Drop the connection without a close frame.
		conn.Close()
	}))
	defer srv.Close()

	transport := NewWebSocket(wsEndpoint(srv), Options{})
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	ev := nextEvent(t, transport.Events())
	require.Equal(t, EventError, ev.Type)
	assert.Error(t, ev.Err)
}

func TestWebSocketConnectTwice(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	transport := NewWebSocket(wsEndpoint(srv), Options{})
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	err := transport.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")
}

func TestWebSocketSendBeforeConnect(t *testing.T) {
	transport := NewWebSocket("ws://127.0.0.1:1/vocalis", Options{})
	err := transport.Send(audio.PCMChunk{Data: []byte{0, 0}, SampleRate: 16000, Channels: 1})
	require.Error(t, err)
}

func TestWebSocketCloseIdempotent(t *testing.T) {
	transport := NewWebSocket("ws://127.0.0.1:1/vocalis", Options{})
	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	// Connect after close must refuse.
	err := transport.Connect(context.Background())
	require.Error(t, err)
}

func TestWebSocketDialFailure(t *testing.T) {
	// Port 1 is never listening.
	transport := NewWebSocket("ws://127.0.0.1:1", Options{})
	err := transport.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
}

func TestDialSchemeDispatch(t *testing.T) {
	tests := []struct {
		endpoint string
		want     any
		wantErr  bool
	}{
		{"ws://localhost:8931", &WebSocket{}, false},
		{"wss://voice.example.com/vocalis", &WebSocket{}, false},
		{"nats://localhost:4222", &NATS{}, false},
		{"http://localhost:8931", nil, true},
		{"localhost:8931", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			transport, err := Dial(tt.endpoint, Options{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, transport)
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()

	assert.NotEmpty(t, opts.SessionID)
	assert.Equal(t, "pcm16", opts.Uplink.Codec)
	assert.Equal(t, 16000, opts.Uplink.SampleRate)
	require.Len(t, opts.Formats, 1)
	assert.Equal(t, 24000, opts.Formats[0].SampleRate)
	assert.NotNil(t, opts.Logger)

	// Distinct sessions get distinct IDs.
	other := Options{}.withDefaults()
	assert.NotEqual(t, opts.SessionID, other.SessionID)
}

func TestNATSSendBeforeConnect(t *testing.T) {
	transport := NewNATS("nats://127.0.0.1:1", Options{})
	err := transport.Send(audio.PCMChunk{Data: []byte{0, 0}, SampleRate: 16000, Channels: 1})
	require.Error(t, err)
	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
}

func TestRouteControlIgnoresOwnStartEcho(t *testing.T) {
	msg, err := NewMessage(TypeSessionStart, SessionStart{SessionID: "s1"})
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var emitted []Event
	done := routeControl(data, discardLogger(), func(ev Event) { emitted = append(emitted, ev) })
	assert.False(t, done)
	assert.Empty(t, emitted)
}

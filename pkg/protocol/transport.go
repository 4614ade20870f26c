// ABOUTME: Transport boundary between the session and the speech service
// ABOUTME: Dial picks the wire implementation from the endpoint URL scheme
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
)

// DefaultPath is the WebSocket endpoint path when the URL has none.
const DefaultPath = "/vocalis"

// eventBuffer sizes the inbound event channel.
const eventBuffer = 64

// Transport moves audio and control between a session and a speech
// service. The wire protocol is opaque to the session: it sees only
// chunks out and events in.
type Transport interface {
	// Connect performs the network dial and the session/start handshake.
	// The negotiated format arrives later as an EventOpen. Calling
	// Connect twice is an error.
	Connect(ctx context.Context) error

	// Send streams one microphone chunk. Returns an error once the
	// transport is closed.
	Send(chunk audio.PCMChunk) error

	// Events delivers inbound events. The channel closes when the
	// transport is done; a close without a preceding EventClosed or
	// EventError means the peer vanished.
	Events() <-chan Event

	// Close ends the session, telling the peer when the wire still
	// allows it. Idempotent.
	Close() error
}

// Options configures a transport.
type Options struct {
	// SessionID identifies the session. Empty generates a random ID.
	SessionID string

	// Name is the display name sent in session/start.
	Name string

	// Uplink is the microphone stream format.
	Uplink AudioFormat

	// Formats lists playable downlink formats in preference order.
	Formats []AudioFormat

	// Product and Version identify the client software.
	Product string
	Version string

	// Logger for wire-level events. Nil uses slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.SessionID == "" {
		o.SessionID = uuid.New().String()
	}
	if o.Uplink == (AudioFormat{}) {
		o.Uplink = AudioFormat{Codec: "pcm16", SampleRate: 16000, Channels: 1, BitDepth: 16}
	}
	if len(o.Formats) == 0 {
		o.Formats = []AudioFormat{{Codec: "pcm16", SampleRate: 24000, Channels: 1, BitDepth: 16}}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Dial builds a transport for the endpoint URL without connecting it.
// ws:// and wss:// endpoints speak WebSocket; nats:// endpoints relay
// through a NATS broker.
func Dial(endpoint string, opts Options) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return NewWebSocket(endpoint, opts), nil
	case "nats":
		return NewNATS(endpoint, opts), nil
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}

// ABOUTME: Inbound transport events delivered to the session
// ABOUTME: One tagged union instead of a channel per message type
package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// EventType discriminates Event.
type EventType int

const (
	// EventOpen reports a completed handshake. Format carries the
	// negotiated downlink format.
	EventOpen EventType = iota

	// EventAudio carries one downlink chunk in Seq and Data.
	EventAudio

	// EventInterrupt orders playback cut. Reason is advisory.
	EventInterrupt

	// EventClosed reports an orderly shutdown from either side.
	EventClosed

	// EventError reports a transport failure. The session decides whether
	// to surface or retry; the transport never reconnects on its own.
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventAudio:
		return "audio"
	case EventInterrupt:
		return "interrupt"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single inbound transport event. Only the fields for its
// Type are set.
type Event struct {
	Type   EventType
	Format AudioFormat // EventOpen
	Seq    uint64      // EventAudio
	Data   []byte      // EventAudio
	Reason string      // EventInterrupt, EventClosed
	Err    error       // EventError
}

// routeFrame turns a binary audio frame into an event. Malformed frames
// are logged and dropped; the stream survives one bad chunk.
func routeFrame(data []byte, log *slog.Logger, emit func(Event)) {
	kind, seq, payload, err := DecodeFrame(data)
	if err != nil {
		log.Warn("dropping malformed frame", "error", err)
		return
	}
	if kind != FrameDownlink {
		log.Warn("dropping unexpected frame kind", "kind", kind, "seq", seq)
		return
	}
	emit(Event{Type: EventAudio, Seq: seq, Data: payload})
}

// routeControl turns a JSON control message into an event and reports
// whether the message ended the session.
func routeControl(data []byte, log *slog.Logger, emit func(Event)) bool {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn("dropping unparseable control message", "error", err)
		return false
	}

	switch msg.Type {
	case TypeSessionReady:
		var ready SessionReady
		if err := msg.Decode(&ready); err != nil {
			log.Warn("bad session/ready", "error", err)
			return false
		}
		emit(Event{Type: EventOpen, Format: ready.Format})

	case TypeSpeechInterrupt:
		var intr SpeechInterrupt
		if err := msg.Decode(&intr); err != nil {
			log.Warn("bad speech/interrupt", "error", err)
			return false
		}
		emit(Event{Type: EventInterrupt, Reason: intr.Reason})

	case TypeSessionEnd:
		var end SessionEnd
		if err := msg.Decode(&end); err != nil {
			log.Warn("bad session/end", "error", err)
			return false
		}
		emit(Event{Type: EventClosed, Reason: end.Reason})
		return true

	case TypeSessionError:
		var serr SessionError
		if err := msg.Decode(&serr); err != nil {
			log.Warn("bad session/error", "error", err)
			return false
		}
		if serr.Code != "" {
			emit(Event{Type: EventError, Err: fmt.Errorf("server error %s: %s", serr.Code, serr.Message)})
		} else {
			emit(Event{Type: EventError, Err: fmt.Errorf("server error: %s", serr.Message)})
		}

	case TypeSessionStart:
		// Own handshake echoed back on a shared broker subject.

	default:
		log.Debug("ignoring unknown control message", "type", msg.Type)
	}
	return false
}

// ABOUTME: Session lifecycle states
// ABOUTME: Idle through Connecting and Streaming to Closed or Failed
package vocalis

// State is the session lifecycle position.
type State int

const (
	// StateIdle is the state before Start.
	StateIdle State = iota

	// StateConnecting covers device acquisition and the transport
	// handshake.
	StateConnecting

	// StateStreaming is the steady state: mic chunks flow out,
	// synthesized chunks flow in.
	StateStreaming

	// StateInterrupted is the momentary state while playback is cut;
	// the session re-enters Streaming immediately.
	StateInterrupted

	// StateClosed is the terminal state after an orderly stop.
	StateClosed

	// StateFailed is the terminal state after an error; the reason
	// travels alongside.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateInterrupted:
		return "interrupted"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

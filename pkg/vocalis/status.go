// ABOUTME: Status events and session statistics
// ABOUTME: Everything an observer needs travels on one channel
package vocalis

// Stats aggregates counters across the capture, transport and playback
// halves of a session.
type Stats struct {
	// Uplink.
	ChunksSent     uint64  // mic chunks delivered to the transport
	CaptureFrames  uint64  // frames read from the device
	CaptureDropped uint64  // chunks dropped because the session lagged
	InputPeak      float32 // peak amplitude of the last mic chunk

	// Downlink.
	ChunksReceived uint64 // synthesized chunks offered to the scheduler
	ChunksSkipped  uint64 // chunks rejected before reaching the timeline
	ChunksPlayed   uint64 // units rendered to completion
	Gaps           uint64 // audible gaps between consecutive units
	GapFrames      int64  // total silence frames inside those gaps

	// Control.
	Interrupts uint64 // playback cuts, remote and local
}

// StatusEvent is one update on the session status channel: a state
// transition with a stats snapshot, plus the failure cause when the
// session ends badly.
type StatusEvent struct {
	State  State
	Reason FailureReason // set when State is StateFailed
	Err    error         // set when State is StateFailed
	Stats  Stats
}

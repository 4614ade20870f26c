// ABOUTME: Playback unit lifecycle
// ABOUTME: A scheduled sample buffer with identity, timing and state
package playback

import (
	"time"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/google/uuid"
)

// UnitState tracks a unit through its lifecycle.
type UnitState int

const (
	// UnitScheduled means the unit waits for its start position.
	UnitScheduled UnitState = iota
	// UnitPlaying means the render position is inside the unit.
	UnitPlaying
	// UnitFinished means the unit rendered to its natural end.
	UnitFinished
	// UnitStopped means the unit was cut short by an interruption.
	UnitStopped
)

func (s UnitState) String() string {
	switch s {
	case UnitScheduled:
		return "scheduled"
	case UnitPlaying:
		return "playing"
	case UnitFinished:
		return "finished"
	case UnitStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Unit is one scheduled stretch of synthesized audio on the timeline.
// Units are created and owned by the Scheduler; positions are absolute
// frame counts on the output timeline.
type Unit struct {
	ID         string
	Seq        uint64
	StartFrame int64
	EndFrame   int64

	buffer *audio.SampleBuffer
	state  UnitState
}

func newUnit(buf *audio.SampleBuffer, seq uint64, start int64) *Unit {
	return &Unit{
		ID:         uuid.New().String(),
		Seq:        seq,
		StartFrame: start,
		EndFrame:   start + int64(buf.Frames()),
		buffer:     buf,
		state:      UnitScheduled,
	}
}

// Frames returns the unit length in output frames.
func (u *Unit) Frames() int64 {
	return u.EndFrame - u.StartFrame
}

// Duration returns the unit length in wall time.
func (u *Unit) Duration() time.Duration {
	return u.buffer.Duration()
}

// State returns the unit's lifecycle state. Only valid to call from the
// scheduler's lock or after the unit left the active set.
func (u *Unit) State() UnitState {
	return u.state
}

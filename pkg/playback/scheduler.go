// ABOUTME: Timeline scheduler for gapless synthesized playback
// ABOUTME: Owns the cursor and active units and renders the composite signal
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/decode"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/pcm"
)

// ErrClosed is returned by Schedule after the scheduler shut down.
var ErrClosed = errors.New("playback: scheduler closed")

// DefaultTapFrames is the visualizer window kept by the render tap.
const DefaultTapFrames = 2048

// Config configures a Scheduler.
type Config struct {
	// Format is the output timeline format. Codec selects the payload
	// decoder ("pcm16" or "opus").
	Format audio.Format

	// Decoder overrides the payload decoder derived from Format.
	Decoder decode.Decoder

	// OnUnitDone fires outside the scheduler lock whenever a unit
	// leaves the active set, finished or stopped.
	OnUnitDone func(*Unit)

	// TapFrames sizes the visualizer window (default 2048).
	TapFrames int

	// Logger for skip events. Nil uses slog.Default().
	Logger *slog.Logger
}

// Stats tracks scheduler counters.
type Stats struct {
	Received    uint64 // payloads offered to Schedule
	Skipped     uint64 // payloads rejected before reaching the timeline
	Finished    uint64 // units that rendered to natural completion
	Interrupted uint64 // units cut by Interrupt
	Gaps        uint64 // units that started after the previous unit ended
	GapFrames   int64  // total silence frames between consecutive units
}

// Scheduler places decoded chunks on an absolute frame timeline so that
// consecutive chunks render as one continuous stream. It is the single
// shared pass-through node: the audio engine pulls rendered frames through
// Read, and the visualizer taps the same composite signal via Tap.
//
// The cursor invariant: a new unit starts at max(cursor, render position),
// so units never overlap and never start in the past.
type Scheduler struct {
	format  audio.Format
	decoder decode.Decoder
	onDone  func(*Unit)
	log     *slog.Logger

	mu       sync.Mutex
	units    []*Unit // active set, ordered by StartFrame
	cursor   int64   // end frame of the last scheduled unit
	pos      int64   // frames rendered so far
	seenUnit bool    // a unit has been scheduled since startup
	closed   bool
	stats    Stats
	tap      *tapRing
	scratch  []float32
}

// NewScheduler creates a scheduler for the given output format.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback format: %w", err)
	}

	dec := cfg.Decoder
	if dec == nil {
		format := cfg.Format
		if format.Codec == "" {
			format.Codec = "pcm16"
		}
		var err error
		dec, err = decode.New(format)
		if err != nil {
			return nil, fmt.Errorf("failed to create payload decoder: %w", err)
		}
	}

	tapFrames := cfg.TapFrames
	if tapFrames <= 0 {
		tapFrames = DefaultTapFrames
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		format:  cfg.Format,
		decoder: dec,
		onDone:  cfg.OnUnitDone,
		log:     log,
		tap:     newTapRing(tapFrames),
	}, nil
}

// Schedule decodes a payload and places it on the timeline immediately
// after the last scheduled unit, or at the current render position when
// the timeline has drained. Undecodable or mismatched payloads are
// rejected without touching the timeline.
func (s *Scheduler) Schedule(payload []byte, seq uint64) (*Unit, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.stats.Received++
	s.mu.Unlock()

	buf, err := s.decoder.Decode(payload)
	if err != nil {
		s.skip()
		return nil, fmt.Errorf("chunk %d rejected: %w", seq, err)
	}
	if buf.Frames() == 0 {
		s.skip()
		return nil, fmt.Errorf("chunk %d rejected: empty buffer", seq)
	}
	if buf.SampleRate != s.format.SampleRate {
		s.skip()
		return nil, fmt.Errorf("chunk %d rejected: rate %d does not match timeline rate %d",
			seq, buf.SampleRate, s.format.SampleRate)
	}
	if len(buf.Channels) != 1 && len(buf.Channels) != s.format.Channels {
		s.skip()
		return nil, fmt.Errorf("chunk %d rejected: %d channels against %d-channel timeline",
			seq, len(buf.Channels), s.format.Channels)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	start := s.cursor
	if s.pos > start {
		start = s.pos
		if s.seenUnit && start > s.cursor {
			s.stats.Gaps++
			s.stats.GapFrames += start - s.cursor
		}
	}

	unit := newUnit(buf, seq, start)
	s.units = append(s.units, unit)
	s.cursor = unit.EndFrame
	s.seenUnit = true
	s.mu.Unlock()

	return unit, nil
}

// Interrupt stops every active unit, clears the active set and resets the
// cursor to the current render position. Safe to call at any time,
// including with nothing playing.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := s.units
	s.units = nil
	s.cursor = s.pos
	for _, u := range stopped {
		u.state = UnitStopped
	}
	s.stats.Interrupted += uint64(len(stopped))
	s.mu.Unlock()

	s.notify(stopped)
}

// Read renders the composite signal as signed 16-bit little-endian frames
// and advances the render position. It always fills p completely, with
// silence wherever no unit covers the timeline, so the audio engine never
// starves.
func (s *Scheduler) Read(p []byte) (int, error) {
	frameBytes := s.format.FrameBytes()
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	s.mu.Lock()

	start := s.pos
	end := start + int64(frames)
	channels := s.format.Channels

	need := frames * channels
	if cap(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	scratch := s.scratch[:need]
	for i := range scratch {
		scratch[i] = 0
	}

	var done []*Unit
	remaining := s.units[:0]
	for _, u := range s.units {
		if u.EndFrame <= start {
			// Timeline already moved past this unit.
			u.state = UnitFinished
			s.stats.Finished++
			done = append(done, u)
			continue
		}
		if u.StartFrame < end {
			from := u.StartFrame
			if from < start {
				from = start
			}
			to := u.EndFrame
			if to > end {
				to = end
			}
			u.state = UnitPlaying
			mixUnit(scratch, u, from, to, start, channels)
		}
		if u.EndFrame <= end {
			u.state = UnitFinished
			s.stats.Finished++
			done = append(done, u)
			continue
		}
		remaining = append(remaining, u)
	}
	s.units = remaining
	s.pos = end

	for i := 0; i < frames*channels; i++ {
		v := pcm.SampleToInt16(scratch[i])
		p[i*2] = byte(v)
		p[i*2+1] = byte(uint16(v) >> 8)
	}
	s.tap.push(scratch, channels)

	s.mu.Unlock()

	s.notify(done)
	return frames * frameBytes, nil
}

// mixUnit adds the unit's samples for timeline frames [from, to) into the
// scratch window starting at timeline frame winStart. Mono buffers fan out
// to every output channel.
func mixUnit(scratch []float32, u *Unit, from, to, winStart int64, channels int) {
	mono := len(u.buffer.Channels) == 1
	for f := from; f < to; f++ {
		bi := int(f - u.StartFrame)
		oi := int(f - winStart)
		for ch := 0; ch < channels; ch++ {
			var sample float32
			if mono {
				sample = u.buffer.Channels[0][bi]
			} else {
				sample = u.buffer.Channels[ch][bi]
			}
			scratch[oi*channels+ch] += sample
		}
	}
}

// Tap copies the most recent rendered frames, downmixed to mono, into dst
// and reports how many frames were written. A pure read: it never blocks
// rendering for longer than the copy.
func (s *Scheduler) Tap(dst []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tap.copyLatest(dst)
}

// Position returns the number of frames rendered so far.
func (s *Scheduler) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Cursor returns the end frame of the last scheduled unit.
func (s *Scheduler) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Active returns the number of units on the timeline.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Format returns the output timeline format.
func (s *Scheduler) Format() audio.Format {
	return s.format
}

// Close interrupts all units and rejects further scheduling. Reads keep
// rendering silence so a still-attached engine never starves. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopped := s.units
	s.units = nil
	s.cursor = s.pos
	for _, u := range stopped {
		u.state = UnitStopped
	}
	s.stats.Interrupted += uint64(len(stopped))
	s.mu.Unlock()

	s.notify(stopped)
	return s.decoder.Close()
}

func (s *Scheduler) skip() {
	s.mu.Lock()
	s.stats.Skipped++
	s.mu.Unlock()
}

func (s *Scheduler) notify(units []*Unit) {
	if s.onDone == nil {
		return
	}
	for _, u := range units {
		s.onDone(u)
	}
}

// tapRing keeps the most recent mono-mixed render window for the
// visualizer.
type tapRing struct {
	buf    []float32
	head   int
	filled int
}

func newTapRing(frames int) *tapRing {
	return &tapRing{buf: make([]float32, frames)}
}

// push downmixes interleaved frames to mono and appends them.
func (r *tapRing) push(samples []float32, channels int) {
	if channels <= 0 {
		return
	}
	frames := len(samples) / channels
	inv := 1.0 / float32(channels)
	for f := 0; f < frames; f++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[f*channels+ch]
		}
		r.buf[r.head] = sum * inv
		r.head = (r.head + 1) % len(r.buf)
		if r.filled < len(r.buf) {
			r.filled++
		}
	}
}

// copyLatest fills dst with the newest frames in chronological order.
func (r *tapRing) copyLatest(dst []float32) int {
	n := len(dst)
	if n > r.filled {
		n = r.filled
	}
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(start+i)%len(r.buf)]
	}
	return n
}

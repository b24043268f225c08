package engine

import (
	"math"
	"math/bits"

	"github.com/james-see/skipper/pkg/program"
)

// Epsilon absorbs per-block floating-point rounding when testing note starts
const Epsilon = 0.01

// wrapThreshold is how far program position must move backward, in beats,
// before it counts as a loop repeat or seek rather than jitter
const wrapThreshold = 1.0

// noCursor marks the absence of a previous block position
const noCursor = -1.0

// Scheduler turns transport positions into note events using crossing
// detection against the previous block's program beat.
type Scheduler struct {
	Active  ActiveNotes
	Channel uint8

	cursor float64
}

// NewScheduler returns a scheduler waiting for its first frame
func NewScheduler(channel uint8) Scheduler {
	return Scheduler{Channel: channel & 0x0F, cursor: noCursor}
}

// Cursor returns the program beat processed in the previous block, or -1
func (s *Scheduler) Cursor() float64 {
	return s.cursor
}

// Reset forgets the previous position so the next block starts fresh
func (s *Scheduler) Reset() {
	s.cursor = noCursor
}

// Flush sends a note-off for every sounding pitch and clears them
func (s *Scheduler) Flush(sink Sink) {
	for word := 0; word < len(s.Active.playing); word++ {
		pending := s.Active.playing[word]
		for pending != 0 {
			bit := uint8(bits.TrailingZeros64(pending))
			pending &^= 1 << bit
			pitch := uint8(word)<<6 | bit
			sink.Send(Event{Kind: NoteOff, Channel: s.Channel, Pitch: pitch})
			s.Active.ClearPlaying(pitch)
		}
	}
}

// Process computes the events for one block. It never allocates and never
// fails; missing or unusable input yields no events.
func (s *Scheduler) Process(t *Transport, p *program.Program, sink Sink) {
	if !t.Playing {
		s.Flush(sink)
		s.cursor = noCursor
		return
	}
	if p == nil || !p.Playable() {
		return
	}
	pos, ok := t.beats()
	if !ok {
		return
	}

	length := p.LengthBeats
	beat := math.Mod(pos, length)
	if beat < 0 {
		beat += length
	}

	firstFrame := s.cursor < 0
	wrapped := !firstFrame && beat < s.cursor-wrapThreshold
	restart := firstFrame || wrapped
	// after a restart only notes triggered in this block can sound, and
	// their ends are measured from the start of the cycle
	from := s.cursor
	if restart {
		s.Flush(sink)
		from = noCursor
	}

	for i := 0; i < p.NoteCount; i++ {
		n := &p.Notes[i]
		if !n.Active {
			continue
		}
		pitch := n.Pitch
		if pitch >= NumPitches {
			continue
		}

		if n.StartBeat > from && n.StartBeat <= beat+Epsilon && !s.Active.IsPlaying(pitch) {
			sink.Send(Event{Kind: NoteOn, Channel: s.Channel, Pitch: pitch, Velocity: n.Velocity})
			s.Active.SetPlaying(pitch, n.EndBeat())
		}

		if end, playing := s.Active.EndBeat(pitch); playing {
			if end > from && end <= beat {
				sink.Send(Event{Kind: NoteOff, Channel: s.Channel, Pitch: pitch})
				s.Active.ClearPlaying(pitch)
			}
		}
	}

	s.cursor = beat
}

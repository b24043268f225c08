package engine

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// EventKind identifies a note event
type EventKind uint8

const (
	NoteOn EventKind = iota + 1
	NoteOff
)

func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "NoteOn"
	case NoteOff:
		return "NoteOff"
	default:
		return "Unknown"
	}
}

// Event is a note event emitted at block start (Timing is always 0)
type Event struct {
	Kind     EventKind
	Timing   uint32 // sample offset within the block
	Channel  uint8
	Pitch    uint8
	Velocity float32 // 0.0-1.0, zero for note-off
}

func (e Event) String() string {
	if e.Kind == NoteOn {
		return fmt.Sprintf("%s(%d, %.2f)", e.Kind, e.Pitch, e.Velocity)
	}
	return fmt.Sprintf("%s(%d)", e.Kind, e.Pitch)
}

// Message converts the event to a MIDI channel message
func (e Event) Message() midi.Message {
	ch := e.Channel & 0x0F
	key := e.Pitch & 0x7F
	if e.Kind == NoteOff {
		return midi.NoteOff(ch, key)
	}
	// velocity 0 would read as note-off on the wire
	vel := uint8(e.Velocity * 127)
	if vel == 0 {
		vel = 1
	}
	if vel > 127 {
		vel = 127
	}
	return midi.NoteOn(ch, key, vel)
}

// Sink receives events from the real-time thread. Implementations must
// not block or allocate.
type Sink interface {
	Send(Event)
}

// MaxBlockEvents bounds the events a single block can hold
const MaxBlockEvents = 1024

// EventBuffer is a fixed-capacity Sink, reused block after block
type EventBuffer struct {
	events  [MaxBlockEvents]Event
	n       int
	dropped int
}

// Send appends e, counting it as dropped when the buffer is full
func (b *EventBuffer) Send(e Event) {
	if b.n >= MaxBlockEvents {
		b.dropped++
		return
	}
	b.events[b.n] = e
	b.n++
}

// Events returns the events collected since the last Reset
func (b *EventBuffer) Events() []Event {
	return b.events[:b.n]
}

// Len returns the number of buffered events
func (b *EventBuffer) Len() int { return b.n }

// Dropped returns how many events overflowed since the last Reset
func (b *EventBuffer) Dropped() int { return b.dropped }

// Reset empties the buffer for the next block
func (b *EventBuffer) Reset() {
	b.n = 0
	b.dropped = 0
}

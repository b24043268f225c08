// Package program holds the fixed-capacity musical programs played by the engine
package program

import (
	"errors"
	"math"
	"sort"
)

// Capacity limits. Programs are plain values so they can be copied and
// swapped without touching the heap.
const (
	MaxNotes    = 256
	MaxNameLen  = 64 // bytes, including the terminator slot
	BeatsPerBar = 4
)

// Payload defaults
const (
	DefaultName        = "Staged Program"
	DefaultLengthBars  = 4.0
	DefaultPitch       = 60
	DefaultNoteLength  = 1.0
	DefaultVelocity    = 0.8
	fallbackLengthBeat = DefaultLengthBars * BeatsPerBar
)

var (
	// ErrNoNotes is returned when a payload lacks a usable notes array
	ErrNoNotes = errors.New("no notes array in program payload")
	// ErrInvalidPayload is returned when a payload is not a JSON object
	ErrInvalidPayload = errors.New("program payload is not a JSON object")
)

// Note is a single timed note in a program
type Note struct {
	Pitch       uint8   // MIDI pitch 0-127
	Velocity    float32 // 0.0-1.0
	StartBeat   float64 // beats from program start
	LengthBeats float64
	Active      bool // slot in use
}

// EndBeat returns the beat at which the note stops sounding
func (n Note) EndBeat() float64 {
	return n.StartBeat + n.LengthBeats
}

// Program is a loopable cycle of notes. The first NoteCount slots are
// active, the rest are zeroed.
type Program struct {
	name    [MaxNameLen]byte
	nameLen int

	Version       uint32 // incremented on each successful load
	SourceVersion uint32 // version reported by the payload
	Notes         [MaxNotes]Note
	NoteCount     int
	LengthBars    float64
	LengthBeats   float64 // loop modulus
	Loaded        bool
}

// New returns an empty, unloaded program
func New() Program {
	return Program{
		LengthBars:  DefaultLengthBars,
		LengthBeats: fallbackLengthBeat,
	}
}

// Name returns the program name
func (p *Program) Name() string {
	return string(p.name[:p.nameLen])
}

// SetName copies name into the fixed buffer, truncating at a text boundary
func (p *Program) SetName(name string) {
	n := copy(p.name[:MaxNameLen-1], truncateName(name, MaxNameLen-1))
	p.name[n] = 0
	for i := n + 1; i < MaxNameLen; i++ {
		p.name[i] = 0
	}
	p.nameLen = n
}

// ActiveNotes returns the used note slots
func (p *Program) ActiveNotes() []Note {
	return p.Notes[:p.NoteCount]
}

// Playable reports whether the scheduler can run this program
func (p *Program) Playable() bool {
	return p.Loaded && p.LengthBeats > 0 && !math.IsInf(p.LengthBeats, 0)
}

// Append adds a note to the next free slot. It returns false when full.
func (p *Program) Append(n Note) bool {
	if p.NoteCount >= MaxNotes {
		return false
	}
	n.Active = true
	p.Notes[p.NoteCount] = n
	p.NoteCount++
	return true
}

// sortByStart orders the active slots by start beat. Notes starting
// together keep their slot order. The scheduler releases a pitch in the
// slot that started it, so back-to-back notes of one pitch must appear in
// time order.
func (p *Program) sortByStart() {
	notes := p.Notes[:p.NoteCount]
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].StartBeat < notes[j].StartBeat
	})
}

// clearTail deactivates every slot past NoteCount
func (p *Program) clearTail() {
	for i := p.NoteCount; i < MaxNotes; i++ {
		p.Notes[i] = Note{}
	}
}

// Position converts a program beat into a 1-based bar and beat-in-bar
func Position(beat float64) (bar int, beatInBar float64) {
	bar = int(math.Floor(beat/BeatsPerBar)) + 1
	beatInBar = math.Mod(beat, BeatsPerBar) + 1
	return bar, beatInBar
}

// Overlap describes two notes of the same pitch sounding at once
type Overlap struct {
	Pitch  uint8
	First  int // slot index
	Second int
}

// Overlaps lists same-pitch notes whose spans intersect. The active-note
// tracker keeps one instance per pitch, so such programs lose note-offs.
func (p *Program) Overlaps() []Overlap {
	var out []Overlap
	notes := p.ActiveNotes()
	for i := range notes {
		for j := i + 1; j < len(notes); j++ {
			a, b := notes[i], notes[j]
			if a.Pitch != b.Pitch {
				continue
			}
			if a.StartBeat < b.EndBeat() && b.StartBeat < a.EndBeat() {
				out = append(out, Overlap{Pitch: a.Pitch, First: i, Second: j})
			}
		}
	}
	return out
}

var validBarLengths = []float64{0.125, 0.25, 0.5, 1, 2, 4, 8, 16}

// ValidBarLength reports whether bars is a power of two between 1/8 and 16
func ValidBarLength(bars float64) bool {
	for _, v := range validBarLengths {
		if math.Abs(bars-v) < 0.001 {
			return true
		}
	}
	return false
}

// ValidBarLengths returns the accepted staging lengths
func ValidBarLengths() []float64 {
	out := make([]float64, len(validBarLengths))
	copy(out, validBarLengths)
	return out
}

package program

import (
	"fmt"
	"sort"
)

// Builtin program names
const (
	BuiltinArpeggio = "arpeggio"
	BuiltinBass     = "bass"
	BuiltinChords   = "chords"
	BuiltinDrums    = "drums"
)

var builtins = map[string]func() *Program{
	BuiltinArpeggio: Arpeggio,
	BuiltinBass:     WalkingBass,
	BuiltinChords:   PowerChords,
	BuiltinDrums:    RockBeat,
}

// BuiltinNames returns the names accepted by Builtin, sorted
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a fresh copy of the named builtin program
func Builtin(name string) (*Program, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin program %q", name)
	}
	return build(), nil
}

type noteSpec struct {
	pitch    uint8
	start    float64
	length   float64
	velocity float32
}

func build(name string, bars float64, notes []noteSpec) *Program {
	p := New()
	p.SetName(name)
	p.SourceVersion = 1
	p.LengthBars = bars
	p.LengthBeats = bars * BeatsPerBar
	for _, n := range notes {
		p.Append(Note{Pitch: n.pitch, StartBeat: n.start, LengthBeats: n.length, Velocity: n.velocity})
	}
	p.sortByStart()
	p.clearTail()
	p.Loaded = true
	return &p
}

// Arpeggio is four bars of C major: rising arpeggio, falling melody,
// two half notes and a whole-note resolution.
func Arpeggio() *Program {
	return build("C Major Arpeggio", 4, []noteSpec{
		{60, 0, 1, 0.8}, {64, 1, 1, 0.8}, {67, 2, 1, 0.8}, {72, 3, 1, 0.8},
		{74, 4, 1, 0.8}, {72, 5, 1, 0.8}, {71, 6, 1, 0.8}, {69, 7, 1, 0.8},
		{67, 8, 2, 0.8}, {64, 10, 2, 0.8},
		{60, 12, 4, 0.8},
	})
}

// WalkingBass is a I-IV-V-I walking line in the C1-C2 register
func WalkingBass() *Program {
	return build("Walking Bass C", 4, []noteSpec{
		{24, 0, 1, 0.9}, {31, 1, 1, 0.7}, {28, 2, 1, 0.7}, {31, 3, 1, 0.7},
		{29, 4, 1, 0.9}, {36, 5, 1, 0.7}, {33, 6, 1, 0.7}, {36, 7, 1, 0.7},
		{31, 8, 1, 0.9}, {26, 9, 1, 0.7}, {35, 10, 1, 0.7}, {26, 11, 1, 0.7},
		{24, 12, 1, 0.9}, {31, 13, 1, 0.7}, {24, 14, 1, 0.7}, {28, 15, 1, 0.8},
	})
}

// PowerChords plays root+fifth eighth notes over C5 F5 G5 C5
func PowerChords() *Program {
	chords := [4][2]uint8{{48, 55}, {53, 60}, {55, 62}, {48, 55}}
	var notes []noteSpec
	for bar, chord := range chords {
		for eighth := 0; eighth < 8; eighth++ {
			start := float64(bar)*BeatsPerBar + float64(eighth)*0.5
			notes = append(notes,
				noteSpec{chord[0], start, 0.4, 0.85},
				noteSpec{chord[1], start, 0.4, 0.85 * 0.9},
			)
		}
	}
	return build("Power Chords 8th", 4, notes)
}

// RockBeat triggers C3 on every beat for a drum machine: kick on 1 and 3,
// snare on 2 and 4.
func RockBeat() *Program {
	const c3 = 48
	var notes []noteSpec
	for bar := 0; bar < 4; bar++ {
		start := float64(bar) * BeatsPerBar
		notes = append(notes,
			noteSpec{c3, start, 0.25, 0.9},
			noteSpec{c3, start + 1, 0.25, 0.85},
			noteSpec{c3, start + 2, 0.25, 0.9},
			noteSpec{c3, start + 3, 0.25, 0.85},
		)
	}
	return build("Rock Beat C3", 4, notes)
}

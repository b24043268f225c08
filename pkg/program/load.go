package program

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// LoadReport lists the adjustments made while loading a payload
type LoadReport struct {
	Notes     int // notes loaded
	Truncated int // notes dropped past MaxNotes, or past the loop on import
	Defaulted int // note fields that were missing, invalid or out of range
}

// Parse decodes a program payload into a new loaded program. Version is
// left at zero; the store that adopts the program assigns it.
func Parse(payload []byte) (*Program, LoadReport, error) {
	var report LoadReport

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, report, fmt.Errorf("failed to parse program payload: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, report, ErrInvalidPayload
	}

	notes, ok := obj["notes"].([]any)
	if !ok {
		return nil, report, ErrNoNotes
	}

	p := New()
	name, ok := obj["name"].(string)
	if !ok {
		name = DefaultName
	}
	p.SetName(name)

	p.SourceVersion = 1
	if v, ok := number(obj, "version"); ok && v >= 0 && v <= math.MaxUint32 && v == math.Trunc(v) {
		p.SourceVersion = uint32(v)
	}

	p.LengthBars = DefaultLengthBars
	if v, ok := number(obj, "lengthBars"); ok && v > 0 {
		p.LengthBars = v
	}
	p.LengthBeats = p.LengthBars * BeatsPerBar
	if v, ok := number(obj, "lengthBeats"); ok && v > 0 {
		p.LengthBeats = v
	}

	for i, n := range notes {
		if i >= MaxNotes {
			report.Truncated = len(notes) - MaxNotes
			break
		}
		fields, _ := n.(map[string]any)
		note, defaulted := decodeNote(fields)
		report.Defaulted += defaulted
		p.Append(note)
	}
	p.sortByStart()
	p.clearTail()
	p.Loaded = true
	report.Notes = p.NoteCount

	return &p, report, nil
}

// decodeNote reads one note object, defaulting or clamping bad fields
func decodeNote(fields map[string]any) (Note, int) {
	defaulted := 0
	note := Note{
		Pitch:       DefaultPitch,
		LengthBeats: DefaultNoteLength,
		Velocity:    DefaultVelocity,
	}

	if v, ok := number(fields, "pitch"); ok && v == math.Trunc(v) {
		switch {
		case v < 0:
			note.Pitch = 0
			defaulted++
		case v > 127:
			note.Pitch = 127
			defaulted++
		default:
			note.Pitch = uint8(v)
		}
	} else {
		defaulted++
	}

	if v, ok := number(fields, "startBeat"); ok {
		if v < 0 {
			v = 0
			defaulted++
		}
		note.StartBeat = v
	} else {
		defaulted++
	}

	if v, ok := number(fields, "lengthBeats"); ok && v > 0 {
		note.LengthBeats = v
	} else {
		defaulted++
	}

	if v, ok := number(fields, "velocity"); ok {
		if v < 0 || v > 1 {
			v = math.Max(0, math.Min(1, v))
			defaulted++
		}
		note.Velocity = float32(v)
	} else {
		defaulted++
	}

	return note, defaulted
}

func number(obj map[string]any, key string) (float64, bool) {
	v, ok := obj[key].(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Load replaces p with the program decoded from payload. On failure p is
// left untouched, so a first failed load stays unloaded and a later one
// keeps the previous program.
func (p *Program) Load(payload []byte) (LoadReport, error) {
	next, report, err := Parse(payload)
	if err != nil {
		return report, err
	}
	p.Adopt(next)
	return report, nil
}

// Adopt copies next into p as the following version
func (p *Program) Adopt(next *Program) {
	version := p.Version + 1
	*p = *next
	p.Version = version
}

type payloadNote struct {
	Pitch       int     `json:"pitch"`
	StartBeat   float64 `json:"startBeat"`
	LengthBeats float64 `json:"lengthBeats"`
	Velocity    float64 `json:"velocity"`
}

type payload struct {
	Name        string        `json:"name"`
	Version     uint32        `json:"version"`
	LengthBars  float64       `json:"lengthBars"`
	LengthBeats float64       `json:"lengthBeats"`
	Notes       []payloadNote `json:"notes"`
}

// Payload encodes p in the program source format
func (p *Program) Payload() ([]byte, error) {
	out := payload{
		Name:        p.Name(),
		Version:     p.SourceVersion,
		LengthBars:  p.LengthBars,
		LengthBeats: p.LengthBeats,
		Notes:       make([]payloadNote, 0, p.NoteCount),
	}
	if out.Version == 0 {
		out.Version = 1
	}
	for _, n := range p.ActiveNotes() {
		out.Notes = append(out.Notes, payloadNote{
			Pitch:       int(n.Pitch),
			StartBeat:   n.StartBeat,
			LengthBeats: n.LengthBeats,
			Velocity:    float64(n.Velocity),
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode program: %w", err)
	}
	return data, nil
}

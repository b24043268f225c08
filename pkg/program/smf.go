package program

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

// FromSMF builds a program from Standard MIDI File data. Note on/off pairs
// are matched per channel and key across all tracks; the loop length is
// the shortest valid bar length holding the last kept note end.
func FromSMF(name string, data []byte) (*Program, LoadReport, error) {
	var report LoadReport

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, report, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	resolution := 480.0
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok && mt.Resolution() > 0 {
		resolution = float64(mt.Resolution())
	}

	type key struct{ ch, note uint8 }
	type open struct {
		tick     int64
		velocity uint8
	}

	var notes []noteSpec
	for _, track := range s.Tracks {
		pending := make(map[key]open)
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			var ch, note, vel uint8
			switch {
			case ev.Message.GetNoteStart(&ch, &note, &vel):
				k := key{ch, note}
				if prev, ok := pending[k]; ok {
					// retrigger closes the sounding instance
					notes = append(notes, smfNote(note, prev.tick, tick, prev.velocity, resolution))
				}
				pending[k] = open{tick: tick, velocity: vel}
			case ev.Message.GetNoteEnd(&ch, &note):
				k := key{ch, note}
				if prev, ok := pending[k]; ok {
					notes = append(notes, smfNote(note, prev.tick, tick, prev.velocity, resolution))
					delete(pending, k)
				}
			}
		}
		for k, prev := range pending {
			notes = append(notes, smfNote(k.note, prev.tick, tick, prev.velocity, resolution))
		}
	}

	if len(notes) == 0 {
		return nil, report, errors.New("no notes found in MIDI data")
	}

	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].start != notes[j].start {
			return notes[i].start < notes[j].start
		}
		return notes[i].pitch < notes[j].pitch
	})

	if len(notes) > MaxNotes {
		report.Truncated = len(notes) - MaxNotes
		notes = notes[:MaxNotes]
	}

	end := 0.0
	for _, n := range notes {
		if e := n.start + n.length; e > end {
			end = e
		}
	}
	bars := barsFor(end)

	// notes starting past the longest loop could never trigger
	kept := notes[:0]
	for _, n := range notes {
		if n.start < bars*BeatsPerBar {
			kept = append(kept, n)
		}
	}
	report.Truncated += len(notes) - len(kept)
	notes = kept
	if len(notes) == 0 {
		return nil, report, fmt.Errorf("no notes start within %g bars", bars)
	}

	if name == "" {
		name = "MIDI Program"
	}
	p := build(name, bars, notes)
	report.Notes = p.NoteCount
	return p, report, nil
}

func smfNote(pitch uint8, from, to int64, velocity uint8, resolution float64) noteSpec {
	length := float64(to-from) / resolution
	if length <= 0 {
		length = DefaultNoteLength / 4
	}
	return noteSpec{
		pitch:    pitch & 0x7F,
		start:    float64(from) / resolution,
		length:   length,
		velocity: float32(velocity) / 127,
	}
}

// barsFor returns the shortest valid bar length covering beats
func barsFor(beats float64) float64 {
	for _, bars := range validBarLengths {
		if bars*BeatsPerBar >= beats-1e-9 {
			return bars
		}
	}
	return validBarLengths[len(validBarLengths)-1]
}

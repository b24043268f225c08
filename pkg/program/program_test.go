package program

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const fourNotes = `{
	"name": "Four On The Floor",
	"version": 3,
	"lengthBars": 1,
	"notes": [
		{"pitch": 60, "startBeat": 0, "lengthBeats": 1, "velocity": 0.8},
		{"pitch": 64, "startBeat": 1, "lengthBeats": 1, "velocity": 0.7},
		{"pitch": 67, "startBeat": 2, "lengthBeats": 1, "velocity": 0.6},
		{"pitch": 72, "startBeat": 3, "lengthBeats": 1, "velocity": 0.5}
	]
}`

func TestNewIsUnloaded(t *testing.T) {
	p := New()
	if p.Loaded {
		t.Error("New() program should not be loaded")
	}
	if p.NoteCount != 0 {
		t.Errorf("NoteCount = %d, want 0", p.NoteCount)
	}
	if p.Playable() {
		t.Error("unloaded program should not be playable")
	}
}

func TestLoad(t *testing.T) {
	p := New()
	report, err := p.Load([]byte(fourNotes))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !p.Loaded {
		t.Fatal("program should be loaded")
	}
	if p.Name() != "Four On The Floor" {
		t.Errorf("Name() = %q, want %q", p.Name(), "Four On The Floor")
	}
	if p.Version != 1 {
		t.Errorf("Version = %d, want 1", p.Version)
	}
	if p.SourceVersion != 3 {
		t.Errorf("SourceVersion = %d, want 3", p.SourceVersion)
	}
	if p.LengthBeats != 4 {
		t.Errorf("LengthBeats = %v, want 4 (derived from lengthBars)", p.LengthBeats)
	}
	if p.NoteCount != 4 || report.Notes != 4 {
		t.Fatalf("NoteCount = %d, report.Notes = %d, want 4", p.NoteCount, report.Notes)
	}
	if report.Defaulted != 0 {
		t.Errorf("report.Defaulted = %d, want 0", report.Defaulted)
	}
	want := []uint8{60, 64, 67, 72}
	for i, pitch := range want {
		n := p.Notes[i]
		if !n.Active || n.Pitch != pitch || n.StartBeat != float64(i) || n.LengthBeats != 1 {
			t.Errorf("note %d = %+v, want active pitch %d at %d", i, n, pitch, i)
		}
	}
	for i := p.NoteCount; i < MaxNotes; i++ {
		if p.Notes[i].Active {
			t.Fatalf("slot %d should be inactive", i)
		}
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"missing notes", `{"name": "x"}`, ErrNoNotes},
		{"notes not array", `{"notes": {"pitch": 60}}`, ErrNoNotes},
		{"array payload", `[1, 2, 3]`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			_, err := p.Load([]byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load() error = %v, want %v", err, tt.want)
			}
			if p.Loaded {
				t.Error("failed first load should leave program unloaded")
			}
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		p := New()
		if _, err := p.Load([]byte(`{"notes": [`)); err == nil {
			t.Fatal("Load() should fail on malformed JSON")
		}
	})
}

func TestFailedLoadKeepsPrevious(t *testing.T) {
	p := New()
	if _, err := p.Load([]byte(fourNotes)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := p.Load([]byte(`{"name": "broken"}`)); err == nil {
		t.Fatal("expected failure")
	}
	if !p.Loaded || p.NoteCount != 4 || p.Name() != "Four On The Floor" || p.Version != 1 {
		t.Errorf("previous program not preserved: loaded=%v count=%d name=%q version=%d",
			p.Loaded, p.NoteCount, p.Name(), p.Version)
	}
}

func TestReloadIsIdempotent(t *testing.T) {
	p := New()
	if _, err := p.Load([]byte(fourNotes)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	first := p

	if _, err := p.Load([]byte(fourNotes)); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if p.Version != first.Version+1 {
		t.Errorf("Version = %d, want %d", p.Version, first.Version+1)
	}
	if p.NoteCount != first.NoteCount {
		t.Errorf("NoteCount = %d, want %d", p.NoteCount, first.NoteCount)
	}
	if p.Notes != first.Notes {
		t.Error("note slots changed across identical reloads")
	}
}

func TestLoadClampsFields(t *testing.T) {
	payload := `{"notes": [
		{"pitch": 300, "startBeat": -2, "lengthBeats": 0, "velocity": 4},
		{"pitch": -5, "velocity": -1},
		{"pitch": "C4"},
		{"pitch": 61.5}
	]}`
	p, report, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if report.Defaulted == 0 {
		t.Error("expected defaulted fields to be reported")
	}

	tests := []struct {
		idx      int
		pitch    uint8
		start    float64
		length   float64
		velocity float32
	}{
		{0, 127, 0, DefaultNoteLength, 1},
		{1, 0, 0, DefaultNoteLength, 0},
		{2, DefaultPitch, 0, DefaultNoteLength, DefaultVelocity},
		{3, DefaultPitch, 0, DefaultNoteLength, DefaultVelocity},
	}
	for _, tt := range tests {
		n := p.Notes[tt.idx]
		if n.Pitch != tt.pitch || n.StartBeat != tt.start || n.LengthBeats != tt.length || n.Velocity != tt.velocity {
			t.Errorf("note %d = %+v, want pitch=%d start=%v length=%v velocity=%v",
				tt.idx, n, tt.pitch, tt.start, tt.length, tt.velocity)
		}
	}

	if p.Name() != DefaultName {
		t.Errorf("Name() = %q, want %q", p.Name(), DefaultName)
	}
	if p.LengthBeats != DefaultLengthBars*BeatsPerBar {
		t.Errorf("LengthBeats = %v, want %v", p.LengthBeats, DefaultLengthBars*BeatsPerBar)
	}
}

func TestLoadTruncatesNotes(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"notes": [`)
	for i := 0; i < MaxNotes+10; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"pitch": 60, "startBeat": 0, "lengthBeats": 0.1}`)
	}
	b.WriteString(`]}`)

	p, report, err := Parse([]byte(b.String()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.NoteCount != MaxNotes {
		t.Errorf("NoteCount = %d, want %d", p.NoteCount, MaxNotes)
	}
	if report.Truncated != 10 {
		t.Errorf("report.Truncated = %d, want 10", report.Truncated)
	}
}

func TestSetNameTruncatesAtBoundary(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"ascii", strings.Repeat("a", 100)},
		{"two-byte", strings.Repeat("\u00e9", 40)},
		{"emoji", strings.Repeat("\U0001F3B9", 20)},
		{"combining", strings.Repeat("e\u0301", 30)},
		{"invalid utf8", "abc\xff\xfe" + strings.Repeat("x", 70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Program
			p.SetName(tt.input)
			got := p.Name()
			if len(got) > MaxNameLen-1 {
				t.Errorf("len(Name()) = %d, want <= %d", len(got), MaxNameLen-1)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Name() = %q is not valid UTF-8", got)
			}
			if got == "" {
				t.Error("Name() should not be empty")
			}
		})
	}

	t.Run("combining marks stay attached", func(t *testing.T) {
		var p Program
		p.SetName(strings.Repeat("e\u0301", 30))
		if strings.HasSuffix(p.Name(), "e") {
			t.Error("truncation split a grapheme cluster")
		}
	})

	t.Run("short names are kept", func(t *testing.T) {
		var p Program
		p.SetName("Lead")
		p.SetName("Bass")
		if p.Name() != "Bass" {
			t.Errorf("Name() = %q, want %q", p.Name(), "Bass")
		}
	})
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name  string
		notes int
		title string
	}{
		{BuiltinArpeggio, 11, "C Major Arpeggio"},
		{BuiltinBass, 16, "Walking Bass C"},
		{BuiltinChords, 64, "Power Chords 8th"},
		{BuiltinDrums, 16, "Rock Beat C3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Builtin(tt.name)
			if err != nil {
				t.Fatalf("Builtin() error = %v", err)
			}
			if p.NoteCount != tt.notes {
				t.Errorf("NoteCount = %d, want %d", p.NoteCount, tt.notes)
			}
			if p.Name() != tt.title {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.title)
			}
			if !p.Playable() || p.LengthBeats != 16 {
				t.Errorf("Playable() = %v, LengthBeats = %v", p.Playable(), p.LengthBeats)
			}
			if overlaps := p.Overlaps(); len(overlaps) != 0 {
				t.Errorf("builtin has same-pitch overlaps: %+v", overlaps)
			}
		})
	}

	if _, err := Builtin("kazoo"); err == nil {
		t.Error("Builtin() should reject unknown names")
	}
	if got := len(BuiltinNames()); got != 4 {
		t.Errorf("BuiltinNames() returned %d names, want 4", got)
	}
}

func TestOverlaps(t *testing.T) {
	p := New()
	p.Append(Note{Pitch: 60, StartBeat: 0, LengthBeats: 2})
	p.Append(Note{Pitch: 60, StartBeat: 1, LengthBeats: 1})
	p.Append(Note{Pitch: 60, StartBeat: 2, LengthBeats: 1})
	p.Append(Note{Pitch: 62, StartBeat: 0, LengthBeats: 4})

	overlaps := p.Overlaps()
	if len(overlaps) != 1 {
		t.Fatalf("Overlaps() = %+v, want exactly one", overlaps)
	}
	if overlaps[0].First != 0 || overlaps[0].Second != 1 {
		t.Errorf("overlap = %+v, want slots 0 and 1", overlaps[0])
	}
}

func TestPayloadReloads(t *testing.T) {
	src := Arpeggio()
	data, err := src.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	got, _, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Name() != src.Name() || got.NoteCount != src.NoteCount || got.LengthBeats != src.LengthBeats {
		t.Errorf("reparsed program differs: %q/%d/%v", got.Name(), got.NoteCount, got.LengthBeats)
	}
	if got.Notes != src.Notes {
		t.Error("note slots differ after payload round trip")
	}
}

func TestPitchName(t *testing.T) {
	tests := []struct {
		pitch uint8
		want  string
	}{
		{0, "C-1"},
		{48, "C3"},
		{60, "C4"},
		{61, "C#4"},
		{127, "G9"},
		{200, "???"},
	}
	for _, tt := range tests {
		if got := PitchName(tt.pitch); got != tt.want {
			t.Errorf("PitchName(%d) = %q, want %q", tt.pitch, got, tt.want)
		}
	}
}

func TestValidBarLength(t *testing.T) {
	for _, bars := range []float64{0.125, 0.5, 1, 4, 16} {
		if !ValidBarLength(bars) {
			t.Errorf("ValidBarLength(%v) = false, want true", bars)
		}
	}
	for _, bars := range []float64{0, 1.5, 3, 32} {
		if ValidBarLength(bars) {
			t.Errorf("ValidBarLength(%v) = true, want false", bars)
		}
	}
}

func TestPosition(t *testing.T) {
	bar, beat := Position(5.5)
	if bar != 2 || beat != 2.5 {
		t.Errorf("Position(5.5) = %d, %v, want 2, 2.5", bar, beat)
	}
}

func TestFromSMF(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var track smf.Track
	track.Add(0, midi.NoteOn(0, 60, 127))
	track.Add(480, midi.NoteOff(0, 60))
	track.Add(0, midi.NoteOn(0, 64, 64))
	track.Add(960, midi.NoteOff(0, 64))
	track.Close(0)
	if err := s.Add(track); err != nil {
		t.Fatalf("failed to add track: %v", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write SMF: %v", err)
	}

	p, report, err := FromSMF("clip", buf.Bytes())
	if err != nil {
		t.Fatalf("FromSMF() error = %v", err)
	}
	if p.NoteCount != 2 || report.Notes != 2 {
		t.Fatalf("NoteCount = %d, want 2", p.NoteCount)
	}
	if n := p.Notes[0]; n.Pitch != 60 || n.StartBeat != 0 || n.LengthBeats != 1 || n.Velocity != 1 {
		t.Errorf("note 0 = %+v", n)
	}
	if n := p.Notes[1]; n.Pitch != 64 || n.StartBeat != 1 || n.LengthBeats != 2 {
		t.Errorf("note 1 = %+v", n)
	}
	if p.LengthBars != 1 || p.LengthBeats != 4 {
		t.Errorf("length = %v bars / %v beats, want 1 / 4", p.LengthBars, p.LengthBeats)
	}

	if _, _, err := FromSMF("bad", []byte("nope")); err == nil {
		t.Error("FromSMF() should reject non-MIDI data")
	}
}

func smfBytes(t *testing.T, fill func(track *smf.Track)) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var track smf.Track
	fill(&track)
	track.Close(0)
	if err := s.Add(track); err != nil {
		t.Fatalf("failed to add track: %v", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write SMF: %v", err)
	}
	return buf.Bytes()
}

func TestFromSMFTruncation(t *testing.T) {
	t.Run("length follows kept notes", func(t *testing.T) {
		data := smfBytes(t, func(track *smf.Track) {
			// 256 eighth-of-a-beat notes fill 32 beats
			for i := 0; i < MaxNotes; i++ {
				delta := uint32(12)
				if i == 0 {
					delta = 0
				}
				track.Add(delta, midi.NoteOn(0, uint8(48+i%24), 100))
				track.Add(48, midi.NoteOff(0, uint8(48+i%24)))
			}
			// one more at beat 40, dropped by the note limit
			track.Add(3852, midi.NoteOn(0, 72, 100))
			track.Add(480, midi.NoteOff(0, 72))
		})

		p, report, err := FromSMF("long", data)
		if err != nil {
			t.Fatalf("FromSMF() error = %v", err)
		}
		if p.NoteCount != MaxNotes || report.Truncated != 1 {
			t.Errorf("NoteCount = %d, Truncated = %d, want %d, 1", p.NoteCount, report.Truncated, MaxNotes)
		}
		if p.LengthBars != 8 {
			t.Errorf("LengthBars = %v, want 8", p.LengthBars)
		}
	})

	t.Run("notes past the longest loop", func(t *testing.T) {
		data := smfBytes(t, func(track *smf.Track) {
			track.Add(0, midi.NoteOn(0, 60, 100))
			track.Add(480, midi.NoteOff(0, 60))
			track.Add(480*79, midi.NoteOn(0, 62, 100))
			track.Add(480, midi.NoteOff(0, 62))
		})

		p, report, err := FromSMF("sparse", data)
		if err != nil {
			t.Fatalf("FromSMF() error = %v", err)
		}
		if p.LengthBars != 16 {
			t.Errorf("LengthBars = %v, want 16", p.LengthBars)
		}
		if p.NoteCount != 1 || p.Notes[0].Pitch != 60 || report.Truncated != 1 {
			t.Errorf("NoteCount = %d, first pitch = %d, Truncated = %d, want 1, 60, 1",
				p.NoteCount, p.Notes[0].Pitch, report.Truncated)
		}
	})

	t.Run("nothing inside the loop", func(t *testing.T) {
		data := smfBytes(t, func(track *smf.Track) {
			track.Add(480*100, midi.NoteOn(0, 60, 100))
			track.Add(480, midi.NoteOff(0, 60))
		})
		if _, _, err := FromSMF("late", data); err == nil {
			t.Error("FromSMF() should reject a file with no notes inside 16 bars")
		}
	})
}

func TestParseOrdersNotesByStart(t *testing.T) {
	p, _, err := Parse([]byte(`{"lengthBeats": 4, "notes": [
		{"pitch": 60, "startBeat": 1, "lengthBeats": 1},
		{"pitch": 64, "startBeat": 0, "lengthBeats": 1},
		{"pitch": 60, "startBeat": 0, "lengthBeats": 1}]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []struct {
		pitch uint8
		start float64
	}{{64, 0}, {60, 0}, {60, 1}}
	for i, w := range want {
		if n := p.Notes[i]; n.Pitch != w.pitch || n.StartBeat != w.start || !n.Active {
			t.Errorf("slot %d = %+v, want pitch %d at %v", i, n, w.pitch, w.start)
		}
	}
	if len(p.Overlaps()) != 0 {
		t.Errorf("Overlaps() = %+v, want none", p.Overlaps())
	}
}

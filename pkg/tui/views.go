package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/james-see/skipper/pkg/engine"
	"github.com/james-see/skipper/pkg/program"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func viewLive(s *engine.Snapshot) string {
	var b strings.Builder
	t := &s.Transport

	status := "STOPPED"
	if t.Playing {
		status = "PLAYING"
	}
	if t.Recording {
		status += " REC"
	}
	b.WriteString(row("Transport", status))

	if tempo, ok := t.Tempo.Get(); ok {
		b.WriteString(row("Tempo", fmt.Sprintf("%.1f BPM", tempo)))
	} else {
		b.WriteString(row("Tempo", "-"))
	}

	num, okNum := t.TimeSigNum.Get()
	den, okDen := t.TimeSigDen.Get()
	if okNum && okDen {
		b.WriteString(row("Time sig", fmt.Sprintf("%d/%d", num, den)))
	}

	if bar, beat, ok := t.BarBeat(); ok {
		b.WriteString(row("Position", fmt.Sprintf("%d.%.2f", bar, beat)))
	} else {
		b.WriteString(row("Position", "-"))
	}

	if secs, ok := t.PosSeconds.Get(); ok && secs >= 0 {
		b.WriteString(row("Time", formatDuration(time.Duration(secs*float64(time.Second)))))
	}

	if t.LoopActive {
		start, _ := t.LoopStartBeats.Get()
		end, _ := t.LoopEndBeats.Get()
		b.WriteString(row("Loop", fmt.Sprintf("%.2f - %.2f", start, end)))
	}

	b.WriteString(row("Sounding", soundingNames(&s.Active)))
	return b.String()
}

func viewProgram(s *engine.Snapshot, height int) string {
	var b strings.Builder
	p := &s.Program

	if !p.Loaded {
		b.WriteString(row("Program", "none"))
		return b.String()
	}

	b.WriteString(row("Program", p.Name()))
	b.WriteString(row("Version", fmt.Sprintf("%d", p.Version)))
	b.WriteString(row("Length", fmt.Sprintf("%g bars", p.LengthBars)))
	b.WriteString(row("Notes", fmt.Sprintf("%d", p.NoteCount)))
	if s.Cursor >= 0 {
		bar, beat := program.Position(s.Cursor)
		b.WriteString(row("At", fmt.Sprintf("%d.%.2f of %g", bar, beat, p.LengthBars)))
	}
	b.WriteString("\n")

	limit := p.NoteCount
	if height > 0 {
		if room := height - 22; room < limit {
			limit = max(room, 4)
		}
	}
	notes := p.ActiveNotes()
	for i, n := range notes {
		if i >= limit {
			b.WriteString(fmt.Sprintf("  … %d more\n", len(notes)-limit))
			break
		}
		line := fmt.Sprintf("%3d  %-4s  %6.2f  %5.2f  %3.0f%%",
			i+1, program.PitchName(n.Pitch), n.StartBeat, n.LengthBeats, n.Velocity*100)
		if sounding(s, n) {
			b.WriteString(soundingStyle.Render("▸" + line))
		} else {
			b.WriteString(" " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// sounding reports whether n is the instance its pitch is playing
func sounding(s *engine.Snapshot, n program.Note) bool {
	end, ok := s.Active.EndBeat(n.Pitch)
	return ok && end == n.EndBeat() && s.Cursor >= n.StartBeat
}

func soundingNames(a *engine.ActiveNotes) string {
	var names []string
	for pitch := 0; pitch < engine.NumPitches; pitch++ {
		if a.IsPlaying(uint8(pitch)) {
			names = append(names, program.PitchName(uint8(pitch)))
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, " ")
}

// InfoReport is the plain-text summary shown on the Info page
func InfoReport(s *engine.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instance:    %s\n", engine.InstanceUUID(s.InstanceID))
	if s.Host.TrackName != "" {
		fmt.Fprintf(&b, "Track:       %s\n", s.Host.TrackName)
	}
	if s.Host.SampleRate > 0 {
		fmt.Fprintf(&b, "Sample rate: %s Hz\n", humanize.Comma(int64(s.Host.SampleRate)))
		fmt.Fprintf(&b, "Block size:  %d\n", s.Host.BlockSize)
	}
	if s.Program.Loaded {
		fmt.Fprintf(&b, "Program:     %s (v%d, %d notes, %g bars)\n",
			s.Program.Name(), s.Program.Version, s.Program.NoteCount, s.Program.LengthBars)
		if overlaps := s.Program.Overlaps(); len(overlaps) > 0 {
			fmt.Fprintf(&b, "Warning:     %d overlapping same-pitch notes\n", len(overlaps))
		}
	} else {
		b.WriteString("Program:     none\n")
	}
	fmt.Fprintf(&b, "Blocks:      %s processed, %s skipped\n",
		humanize.Comma(int64(s.Processed)), humanize.Comma(int64(s.Skipped)))
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return durafmt.Parse(d.Truncate(time.Millisecond)).LimitFirstN(2).Format(shortUnits)
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

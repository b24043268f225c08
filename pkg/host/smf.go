package host

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"
)

// TicksPerQuarter is the resolution of exported files
const TicksPerQuarter = 480

// WriteSMF writes events as a single-track Standard MIDI File
func WriteSMF(w io.Writer, name string, events []TimedEvent, tempo float64) error {
	if tempo <= 0 {
		tempo = DefaultTempo
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var track smf.Track
	if name != "" {
		track.Add(0, smf.MetaTrackSequenceName(name))
	}
	track.Add(0, smf.MetaTempo(tempo))
	track.Add(0, smf.MetaMeter(4, 4))

	var last int64
	for _, ev := range events {
		tick := int64(math.Round(ev.Elapsed * TicksPerQuarter))
		if tick < last {
			tick = last
		}
		track.Add(uint32(tick-last), ev.Message())
		last = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write MIDI: %w", err)
	}
	return nil
}

// WriteSMFFile writes events to a MIDI file
func WriteSMFFile(path, name string, events []TimedEvent, tempo float64) error {
	var buf bytes.Buffer
	if err := WriteSMF(&buf, name, events, tempo); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

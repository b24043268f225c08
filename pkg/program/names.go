package program

import (
	"strconv"
	"strings"

	"github.com/rivo/uniseg"
)

// truncateName limits s to limit bytes without splitting a grapheme cluster
func truncateName(s string, limit int) string {
	s = strings.ToValidUTF8(s, "�")
	if len(s) <= limit {
		return s
	}
	n := 0
	rest := s
	state := -1
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if n+len(cluster) > limit {
			break
		}
		n += len(cluster)
	}
	return s[:n]
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var pitchNames = func() [128]string {
	var names [128]string
	for i := range names {
		octave := i/12 - 1
		names[i] = noteNames[i%12] + strconv.Itoa(octave)
	}
	return names
}()

// PitchName returns the scientific pitch name, e.g. 60 -> "C4"
func PitchName(pitch uint8) string {
	if int(pitch) < len(pitchNames) {
		return pitchNames[pitch]
	}
	return "???"
}

package engine

import "math/bits"

// NumPitches is the size of the MIDI key range
const NumPitches = 128

// ActiveNotes tracks which pitches are sounding and when each should stop.
// One instance per pitch; end beats are only meaningful while the bit is set.
type ActiveNotes struct {
	playing [2]uint64
	endBeat [NumPitches]float64
}

// IsPlaying reports whether pitch is sounding
func (a *ActiveNotes) IsPlaying(pitch uint8) bool {
	if pitch >= NumPitches {
		return false
	}
	return a.playing[pitch>>6]&(1<<(pitch&63)) != 0
}

// SetPlaying marks pitch as sounding until endBeat
func (a *ActiveNotes) SetPlaying(pitch uint8, endBeat float64) {
	if pitch >= NumPitches {
		return
	}
	a.playing[pitch>>6] |= 1 << (pitch & 63)
	a.endBeat[pitch] = endBeat
}

// ClearPlaying marks pitch as silent
func (a *ActiveNotes) ClearPlaying(pitch uint8) {
	if pitch >= NumPitches {
		return
	}
	a.playing[pitch>>6] &^= 1 << (pitch & 63)
}

// EndBeat returns the tracked end beat for a sounding pitch
func (a *ActiveNotes) EndBeat(pitch uint8) (float64, bool) {
	if !a.IsPlaying(pitch) {
		return 0, false
	}
	return a.endBeat[pitch], true
}

// Count returns the number of sounding pitches
func (a *ActiveNotes) Count() int {
	return bits.OnesCount64(a.playing[0]) + bits.OnesCount64(a.playing[1])
}

// Any reports whether any pitch is sounding
func (a *ActiveNotes) Any() bool {
	return a.playing[0]|a.playing[1] != 0
}

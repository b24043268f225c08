package engine

import "math"

// Optional holds a value the host may not provide
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some wraps a present value
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// Get returns the value and whether it was provided
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// Transport mirrors the host playback state for one processing block.
// It is replaced wholesale every block.
type Transport struct {
	Tempo          Optional[float64] // beats per minute
	TimeSigNum     Optional[int32]
	TimeSigDen     Optional[int32]
	PosSamples     Optional[int64]
	PosBeats       Optional[float64]
	PosSeconds     Optional[float64]
	Playing        bool
	Recording      bool
	LoopActive     bool
	LoopStartBeats Optional[float64]
	LoopEndBeats   Optional[float64]
}

// beats returns the block position, treating NaN and infinities as absent
func (t *Transport) beats() (float64, bool) {
	pos, ok := t.PosBeats.Get()
	if !ok || math.IsNaN(pos) || math.IsInf(pos, 0) {
		return 0, false
	}
	return pos, true
}

// BarBeat returns the 1-based bar and beat-in-bar of the transport
// position using the host time signature, or 4/4 when absent.
func (t *Transport) BarBeat() (bar int, beat float64, ok bool) {
	pos, ok := t.beats()
	if !ok {
		return 0, 0, false
	}
	num := 4.0
	if n, ok := t.TimeSigNum.Get(); ok && n > 0 {
		num = float64(n)
	}
	return int(math.Floor(pos/num)) + 1, math.Mod(pos, num) + 1, true
}

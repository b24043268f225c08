// Package host simulates the plugin host: a block clock that feeds the
// engine a transport every block, a real-time runner, offline rendering
// and MIDI output.
package host

import (
	"errors"
	"math"
	"time"

	"github.com/james-see/skipper/pkg/engine"
)

// Clock defaults
const (
	DefaultSampleRate = 44100.0
	DefaultBlockSize  = 512
	DefaultTempo      = 120.0
)

// Clock is the host transport. It is not safe for concurrent use; the
// runner goroutine owns it.
type Clock struct {
	SampleRate float64
	BlockSize  int
	Tempo      float64 // beats per minute
	TimeSigNum int32
	TimeSigDen int32

	samples   int64
	playing   bool
	loop      bool
	loopStart float64
	loopEnd   float64
}

// NewClock creates a stopped clock at beat zero. Non-positive values fall
// back to the defaults.
func NewClock(sampleRate float64, blockSize int, tempo float64) *Clock {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	return &Clock{
		SampleRate: sampleRate,
		BlockSize:  blockSize,
		Tempo:      tempo,
		TimeSigNum: 4,
		TimeSigDen: 4,
	}
}

// Play starts the transport
func (c *Clock) Play() { c.playing = true }

// Stop halts the transport without moving it
func (c *Clock) Stop() { c.playing = false }

// Playing reports whether the transport runs
func (c *Clock) Playing() bool { return c.playing }

// Seek moves the transport to beats
func (c *Clock) Seek(beats float64) {
	if math.IsNaN(beats) || math.IsInf(beats, 0) {
		return
	}
	c.samples = int64(math.Round(beats * c.samplesPerBeat()))
}

// SetLoop makes the transport cycle over [start, end) in beats
func (c *Clock) SetLoop(start, end float64) error {
	if start < 0 || end <= start {
		return errors.New("loop end must be after a non-negative loop start")
	}
	c.loop = true
	c.loopStart = start
	c.loopEnd = end
	return nil
}

// ClearLoop disables host looping
func (c *Clock) ClearLoop() { c.loop = false }

// Beats returns the transport position in beats
func (c *Clock) Beats() float64 {
	return float64(c.samples) / c.samplesPerBeat()
}

// BlockBeats returns how many beats one block spans
func (c *Clock) BlockBeats() float64 {
	return float64(c.BlockSize) / c.samplesPerBeat()
}

// BlockDuration returns the wall-clock length of one block
func (c *Clock) BlockDuration() time.Duration {
	return time.Duration(float64(c.BlockSize) / c.SampleRate * float64(time.Second))
}

// BlocksFor returns the number of blocks needed to cover beats
func (c *Clock) BlocksFor(beats float64) int {
	if beats <= 0 {
		return 0
	}
	return int(math.Ceil(beats/c.BlockBeats() - 1e-9))
}

// Transport returns the transport state for the current block
func (c *Clock) Transport() engine.Transport {
	t := engine.Transport{
		Tempo:      engine.Some(c.Tempo),
		TimeSigNum: engine.Some(c.TimeSigNum),
		TimeSigDen: engine.Some(c.TimeSigDen),
		PosSamples: engine.Some(c.samples),
		PosBeats:   engine.Some(c.Beats()),
		PosSeconds: engine.Some(float64(c.samples) / c.SampleRate),
		Playing:    c.playing,
		LoopActive: c.loop,
	}
	if c.loop {
		t.LoopStartBeats = engine.Some(c.loopStart)
		t.LoopEndBeats = engine.Some(c.loopEnd)
	}
	return t
}

// Advance moves a playing transport forward by one block, jumping back to
// the loop start when it passes the loop end.
func (c *Clock) Advance() {
	if !c.playing {
		return
	}
	c.samples += int64(c.BlockSize)
	if c.loop {
		if beats := c.Beats(); beats >= c.loopEnd {
			over := math.Mod(beats-c.loopStart, c.loopEnd-c.loopStart)
			c.Seek(c.loopStart + over)
		}
	}
}

func (c *Clock) samplesPerBeat() float64 {
	return c.SampleRate * 60 / c.Tempo
}

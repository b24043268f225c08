package host

import (
	"github.com/james-see/skipper/pkg/engine"
)

// TimedEvent is an engine event stamped with where it happened
type TimedEvent struct {
	engine.Event
	Block   int
	Beat    float64 // host transport position
	Elapsed float64 // beats since the render started
}

// Render plays the engine for the given number of blocks from the clock's
// current position, then stops the transport so every note is released.
func Render(e *engine.Engine, clock *Clock, blocks int) []TimedEvent {
	var (
		buf     engine.EventBuffer
		out     []TimedEvent
		elapsed float64
	)

	collect := func(block int, t engine.Transport) {
		buf.Reset()
		if !e.Process(t, &buf) {
			return
		}
		beat, _ := t.PosBeats.Get()
		for _, ev := range buf.Events() {
			out = append(out, TimedEvent{Event: ev, Block: block, Beat: beat, Elapsed: elapsed})
		}
	}

	clock.Play()
	for block := 0; block < blocks; block++ {
		collect(block, clock.Transport())
		clock.Advance()
		elapsed += clock.BlockBeats()
	}
	clock.Stop()
	collect(blocks, clock.Transport())

	return out
}

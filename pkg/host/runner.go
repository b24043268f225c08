package host

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/james-see/skipper/pkg/engine"
)

// Output receives the events of each processed block
type Output interface {
	Write(events []engine.Event) error
}

type controlKind uint8

const (
	ctlPlay controlKind = iota
	ctlStop
	ctlToggle
	ctlSeek
)

type control struct {
	kind  controlKind
	beats float64
}

// Runner drives an engine from a clock at block cadence. Transport
// control requests are queued and applied between blocks.
type Runner struct {
	engine  *engine.Engine
	clock   *Clock
	out     Output
	control chan control
	log     *logrus.Entry

	buf engine.EventBuffer
}

// NewRunner creates a runner; out may be nil to discard events
func NewRunner(e *engine.Engine, clock *Clock, out Output, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		engine:  e,
		clock:   clock,
		out:     out,
		control: make(chan control, 16),
		log:     logger.WithField("component", "host"),
	}
}

// Play queues a transport start
func (r *Runner) Play() bool { return r.send(control{kind: ctlPlay}) }

// Stop queues a transport stop
func (r *Runner) Stop() bool { return r.send(control{kind: ctlStop}) }

// Toggle queues a play/stop switch
func (r *Runner) Toggle() bool { return r.send(control{kind: ctlToggle}) }

// Seek queues a jump to beats
func (r *Runner) Seek(beats float64) bool { return r.send(control{kind: ctlSeek, beats: beats}) }

// send never blocks; a full queue drops the request
func (r *Runner) send(c control) bool {
	select {
	case r.control <- c:
		return true
	default:
		r.log.Warn("transport control queue full")
		return false
	}
}

// Run processes blocks until ctx is done. Sounding notes are released
// before returning, waiting for the guard if the UI holds it.
func (r *Runner) Run(ctx context.Context) error {
	r.engine.SetHostInfo(engine.HostInfo{
		SampleRate: r.clock.SampleRate,
		BlockSize:  r.clock.BlockSize,
		TrackName:  r.engine.TrackName(),
	})

	ticker := time.NewTicker(r.clock.BlockDuration())
	defer ticker.Stop()

	r.log.WithFields(logrus.Fields{
		"sampleRate": r.clock.SampleRate,
		"blockSize":  r.clock.BlockSize,
		"tempo":      r.clock.Tempo,
	}).Info("host running")

	for {
		select {
		case <-ctx.Done():
			r.clock.Stop()
			r.release()
			processed, skipped := r.engine.Stats()
			r.log.WithFields(logrus.Fields{
				"processed": processed,
				"skipped":   skipped,
			}).Info("host stopped")
			return nil
		case c := <-r.control:
			r.apply(c)
		case <-ticker.C:
			r.Step()
		}
	}
}

// Step processes one block and advances the clock
func (r *Runner) Step() {
	r.buf.Reset()
	if r.engine.Process(r.clock.Transport(), &r.buf) {
		r.write()
	}
	r.clock.Advance()
}

func (r *Runner) write() {
	if dropped := r.buf.Dropped(); dropped > 0 {
		r.log.WithField("dropped", dropped).Warn("block event buffer overflow")
	}
	if r.out != nil && r.buf.Len() > 0 {
		if err := r.out.Write(r.buf.Events()); err != nil {
			r.log.WithError(err).Error("failed to write events")
		}
	}
}

// release flushes sounding notes with a blocking acquire
func (r *Runner) release() {
	r.buf.Reset()
	r.engine.Release(&r.buf)
	r.write()
}

func (r *Runner) apply(c control) {
	switch c.kind {
	case ctlPlay:
		r.clock.Play()
	case ctlStop:
		r.clock.Stop()
	case ctlToggle:
		if r.clock.Playing() {
			r.clock.Stop()
		} else {
			r.clock.Play()
		}
	case ctlSeek:
		r.clock.Seek(c.beats)
	}
}

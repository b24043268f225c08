// Package engine schedules program notes against the host transport
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/james-see/skipper/pkg/program"
)

// Tab is the UI page selection kept in the shared record
type Tab uint8

const (
	TabLive Tab = iota
	TabProgram
	TabInfo
)

// Tabs lists every tab in display order
var Tabs = []Tab{TabLive, TabProgram, TabInfo}

func (t Tab) String() string {
	switch t {
	case TabLive:
		return "Live"
	case TabProgram:
		return "Program"
	case TabInfo:
		return "Info"
	default:
		return "Unknown"
	}
}

// HostInfo is host metadata reported outside the block callback
type HostInfo struct {
	SampleRate float64
	BlockSize  int
	TrackName  string
}

// shared is the record guarded by Engine.mu
type shared struct {
	program   program.Program
	scheduler Scheduler
	transport Transport
	tab       Tab
	host      HostInfo
}

// Snapshot is a read-only copy of the shared record for display
type Snapshot struct {
	Transport  Transport
	Program    program.Program
	Active     ActiveNotes
	Cursor     float64
	Tab        Tab
	Host       HostInfo
	InstanceID uint64
	Processed  uint64
	Skipped    uint64
}

// Engine guards the shared playback state. Process is the only entry
// point for the real-time thread; every other method may block.
type Engine struct {
	mu    sync.Mutex
	state shared

	id        uint64
	processed atomic.Uint64
	skipped   atomic.Uint64

	log *logrus.Entry
}

// New creates an engine emitting on the given MIDI channel
func New(channel uint8, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := NextInstanceID()
	e := &Engine{
		id: id,
		log: logger.WithFields(logrus.Fields{
			"component": "engine",
			"instance":  InstanceUUID(id),
		}),
	}
	e.state.program = program.New()
	e.state.scheduler = NewScheduler(channel)
	return e
}

// ID returns the process-wide instance id
func (e *Engine) ID() uint64 {
	return e.id
}

// Process runs one block. When the guard is contended the block is
// skipped without side effects and Process returns false.
func (e *Engine) Process(t Transport, sink Sink) bool {
	if !e.mu.TryLock() {
		e.skipped.Add(1)
		return false
	}
	e.state.transport = t
	e.state.scheduler.Process(&e.state.transport, &e.state.program, sink)
	e.mu.Unlock()
	e.processed.Add(1)
	return true
}

// Release stops playback from outside the block callback: every sounding
// pitch gets a note-off and the scheduler restarts. Unlike Process it waits
// for the guard, so shutdown never leaves notes hanging.
func (e *Engine) Release(sink Sink) {
	e.mu.Lock()
	e.state.transport.Playing = false
	e.state.scheduler.Flush(sink)
	e.state.scheduler.Reset()
	e.mu.Unlock()
}

// LoadProgram parses payload and swaps it in. A failed load keeps the
// current program.
func (e *Engine) LoadProgram(payload []byte) (program.LoadReport, error) {
	next, report, err := program.Parse(payload)
	if err != nil {
		e.log.WithError(err).Warn("program load failed")
		return report, err
	}
	if report.Truncated > 0 {
		e.log.WithField("dropped", report.Truncated).Warn("program truncated")
	}
	if report.Defaulted > 0 {
		e.log.WithField("fields", report.Defaulted).Debug("note fields defaulted")
	}
	e.SetProgram(next)
	return report, nil
}

// SetProgram adopts p as the next program version and returns that
// version. The scheduler restarts so notes of the old program are
// flushed by the next block.
func (e *Engine) SetProgram(p *program.Program) uint32 {
	for _, o := range p.Overlaps() {
		e.log.WithFields(logrus.Fields{
			"pitch":  program.PitchName(o.Pitch),
			"first":  o.First,
			"second": o.Second,
		}).Warn("overlapping notes share a pitch")
	}

	e.mu.Lock()
	e.state.program.Adopt(p)
	e.state.scheduler.Reset()
	version := e.state.program.Version
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"name":    p.Name(),
		"notes":   p.NoteCount,
		"bars":    p.LengthBars,
		"version": version,
	}).Info("program loaded")
	return version
}

// HasProgram reports whether a program is loaded
func (e *Engine) HasProgram() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.program.Loaded
}

// Snapshot copies the shared record into s
func (e *Engine) Snapshot(s *Snapshot) {
	e.mu.Lock()
	s.Transport = e.state.transport
	s.Program = e.state.program
	s.Active = e.state.scheduler.Active
	s.Cursor = e.state.scheduler.Cursor()
	s.Tab = e.state.tab
	s.Host = e.state.host
	e.mu.Unlock()

	s.InstanceID = e.id
	s.Processed = e.processed.Load()
	s.Skipped = e.skipped.Load()
}

// SetTab selects the UI page
func (e *Engine) SetTab(t Tab) {
	e.mu.Lock()
	e.state.tab = t
	e.mu.Unlock()
}

// Tab returns the selected UI page
func (e *Engine) Tab() Tab {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.tab
}

// SetHostInfo records host metadata
func (e *Engine) SetHostInfo(info HostInfo) {
	e.mu.Lock()
	e.state.host = info
	e.mu.Unlock()
}

// TrackName returns the host track name, empty until the host reports it
func (e *Engine) TrackName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.host.TrackName
}

// Stats returns the processed and skipped block counts
func (e *Engine) Stats() (processed, skipped uint64) {
	return e.processed.Load(), e.skipped.Load()
}

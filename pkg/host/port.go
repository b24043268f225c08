package host

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/james-see/skipper/pkg/engine"
)

// PortSink writes events to a MIDI output port
type PortSink struct {
	port drivers.Out
	send func(midi.Message) error
}

// OpenPort opens the first output port whose name contains name
// (case-insensitive). A MIDI driver must be registered by the caller.
func OpenPort(name string) (*PortSink, error) {
	var port drivers.Out
	for _, p := range midi.GetOutPorts() {
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
			port = p
			break
		}
	}
	if port == nil {
		return nil, fmt.Errorf("no MIDI output port matching %q", name)
	}

	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI port %s: %w", port.String(), err)
	}
	return &PortSink{port: port, send: send}, nil
}

// Name returns the port name
func (p *PortSink) Name() string {
	return p.port.String()
}

// Write sends events in order, stopping at the first failure
func (p *PortSink) Write(events []engine.Event) error {
	for _, ev := range events {
		if err := p.send(ev.Message()); err != nil {
			return fmt.Errorf("failed to send %s: %w", ev, err)
		}
	}
	return nil
}

// Close closes the port
func (p *PortSink) Close() error {
	return p.port.Close()
}

// OutPorts lists the available MIDI output port names
func OutPorts() []string {
	var names []string
	for _, p := range midi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

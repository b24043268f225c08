// Package tui provides the terminal monitor for a running skipper engine
package tui

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.design/x/clipboard"

	"github.com/james-see/skipper/pkg/engine"
	"github.com/james-see/skipper/pkg/program"
)

// RefreshInterval is the display cadence
const RefreshInterval = 33 * time.Millisecond

// Acid-inspired color scheme (303/acid aesthetic)
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	tabStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Background(darkGray).
			Bold(true).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(acidYellow)

	soundingStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMonitor State = iota
	StateFilePicker
)

// Transport is the host control the monitor drives
type Transport interface {
	Toggle() bool
	Seek(beats float64) bool
}

var builtinKeys = map[string]string{
	"a": program.BuiltinArpeggio,
	"b": program.BuiltinBass,
	"c": program.BuiltinChords,
	"d": program.BuiltinDrums,
}

// Model represents the TUI model
type Model struct {
	engine     *engine.Engine
	transport  Transport
	state      State
	snap       engine.Snapshot
	spinner    spinner.Model
	filePicker filepicker.Model
	status     string
	err        error
	width      int
	height     int
}

type tickMsg time.Time

type loadedMsg struct {
	name string
	err  error
}

type copiedMsg struct {
	err error
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// New creates a monitor for e; transport may be nil for a read-only view
func New(e *engine.Engine, transport Transport) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi", ".json"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	m := Model{
		engine:     e,
		transport:  transport,
		state:      StateMonitor,
		spinner:    s,
		filePicker: fp,
	}
	e.Snapshot(&m.snap)
	return m
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(tickMsg); ok {
		m.engine.Snapshot(&m.snap)
		return m, tick()
	}

	// the file picker needs every other message while open
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMonitor
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.state = StateMonitor
			return m, loadFile(m.engine, path)
		}
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("Loaded %s", msg.name)
		}
		m.engine.Snapshot(&m.snap)
		return m, nil

	case copiedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = "Info copied to clipboard"
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		if m.transport != nil {
			m.transport.Toggle()
		}
	case "r":
		if m.transport != nil {
			m.transport.Seek(0)
			m.status = "Rewound"
		}
	case "tab":
		next := engine.Tabs[(int(m.snap.Tab)+1)%len(engine.Tabs)]
		m.engine.SetTab(next)
	case "1", "2", "3":
		m.engine.SetTab(engine.Tabs[key[0]-'1'])
	case "a", "b", "c", "d":
		return m, loadBuiltin(m.engine, builtinKeys[key])
	case "o":
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "y":
		return m, copyInfo(InfoReport(&m.snap))
	default:
		return m, nil
	}
	m.engine.Snapshot(&m.snap)
	return m, nil
}

func loadBuiltin(e *engine.Engine, name string) tea.Cmd {
	return func() tea.Msg {
		p, err := program.Builtin(name)
		if err != nil {
			return loadedMsg{err: err}
		}
		e.SetProgram(p)
		return loadedMsg{name: p.Name()}
	}
}

func loadFile(e *engine.Engine, path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return loadedMsg{err: err}
		}
		if strings.HasSuffix(strings.ToLower(path), ".json") {
			if _, err := e.LoadProgram(data); err != nil {
				return loadedMsg{err: err}
			}
			return loadedMsg{name: path}
		}
		p, _, err := program.FromSMF(baseName(path), data)
		if err != nil {
			return loadedMsg{err: err}
		}
		e.SetProgram(p)
		return loadedMsg{name: p.Name()}
	}
}

var (
	clipboardOnce sync.Once
	clipboardErr  error
)

func copyInfo(text string) tea.Cmd {
	return func() tea.Msg {
		clipboardOnce.Do(func() { clipboardErr = clipboard.Init() })
		if clipboardErr != nil {
			return copiedMsg{err: fmt.Errorf("clipboard unavailable: %w", clipboardErr)}
		}
		clipboard.Write(clipboard.FmtText, []byte(text))
		return copiedMsg{}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf(" SKIPPER %s ", engine.InstanceUUID(m.snap.InstanceID))))
	s.WriteString("\n")

	if m.state == StateFilePicker {
		s.WriteString(titleStyle.Render(" OPEN MIDI OR JSON PROGRAM "))
		s.WriteString("\n\n")
		s.WriteString(m.filePicker.View())
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("esc: back"))
		return s.String()
	}

	s.WriteString(m.viewTabs())
	s.WriteString("\n")

	var body string
	switch m.snap.Tab {
	case engine.TabLive:
		body = viewLive(&m.snap)
	case engine.TabProgram:
		body = viewProgram(&m.snap, m.height)
	case engine.TabInfo:
		body = InfoReport(&m.snap)
	}
	if !m.snap.Program.Loaded {
		body = fmt.Sprintf("%s Waiting for a program...\n\n%s", m.spinner.View(), body)
	}
	s.WriteString(boxStyle.Render(body))
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	} else if m.status != "" {
		s.WriteString(statusStyle.Render(m.status))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("space: play/stop • r: rewind • tab/1-3: page • a-d: builtin • o: open • y: copy info • q: quit"))

	return s.String()
}

func (m Model) viewTabs() string {
	var tabs []string
	for i, t := range engine.Tabs {
		label := fmt.Sprintf("%d %s", i+1, t)
		if t == m.snap.Tab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

// Run starts the monitor until the user quits
func Run(e *engine.Engine, transport Transport) error {
	p := tea.NewProgram(New(e, transport), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

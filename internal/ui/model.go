// ABOUTME: Bubbletea model for the session TUI
// ABOUTME: Renders state, counters, mic level and the speech spectrum
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Vocalis-Audio/vocalis-go/pkg/vocalis"
)

// refreshInterval drives spectrum and counter redraws.
const refreshInterval = 50 * time.Millisecond

const volumeStep = 5

// Params configures a Model.
type Params struct {
	Endpoint  string
	SessionID string
	Volume    int

	// Controls forwards user intents to the app. Optional.
	Controls *Controls

	// Frame pulls the current spectrum bins and Snapshot the current
	// session counters. Either may be nil, which leaves that section
	// static.
	Frame    func() []float64
	Snapshot func() vocalis.Stats
}

// Model is the TUI state.
type Model struct {
	endpoint  string
	sessionID string

	state  vocalis.State
	reason vocalis.FailureReason
	errMsg string

	codec      string
	sampleRate int

	volume  int
	muted   bool
	preMute int

	stats vocalis.Stats
	bins  []float64

	frame    func() []float64
	snapshot func() vocalis.Stats
	controls *Controls

	width    int
	quitting bool
}

// NewModel builds the initial TUI state.
func NewModel(p Params) Model {
	return Model{
		endpoint:  p.Endpoint,
		sessionID: p.SessionID,
		state:     vocalis.StateIdle,
		volume:    p.Volume,
		preMute:   p.Volume,
		frame:     p.Frame,
		snapshot:  p.Snapshot,
		controls:  p.Controls,
	}
}

// StatusMsg reflects one session status event into the TUI.
type StatusMsg struct {
	State  vocalis.State
	Reason vocalis.FailureReason
	Err    error
	Stats  vocalis.Stats

	// Codec and SampleRate describe the negotiated downlink format.
	// Empty means unchanged.
	Codec      string
	SampleRate int
}

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the redraw ticker.
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case StatusMsg:
		m.applyStatus(msg)
	case tickMsg:
		if m.frame != nil {
			m.bins = m.frame()
		}
		if m.snapshot != nil {
			m.stats = m.snapshot()
		}
		return m, tickEvery()
	}

	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume += volumeStep
		if m.volume > 100 {
			m.volume = 100
		}
		m.muted = false
		m.sendVolume()
	case "down":
		m.volume -= volumeStep
		if m.volume < 0 {
			m.volume = 0
		}
		m.muted = false
		m.sendVolume()
	case "m":
		if m.muted {
			m.volume = m.preMute
			m.muted = false
		} else {
			m.preMute = m.volume
			m.volume = 0
			m.muted = true
		}
		m.sendVolume()
	case "i":
		if m.controls != nil {
			select {
			case m.controls.Interrupts <- struct{}{}:
			default:
			}
		}
	}

	return m, nil
}

func (m *Model) sendVolume() {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Volume <- m.volume:
	default:
	}
}

// applyStatus updates model state from a session status event.
func (m *Model) applyStatus(msg StatusMsg) {
	m.state = msg.State
	m.reason = msg.Reason
	if msg.Err != nil {
		m.errMsg = msg.Err.Error()
	}
	m.stats = msg.Stats
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Closing session...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	alertStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("203"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Vocalis"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Endpoint: "))
	b.WriteString(valueStyle.Render(m.endpoint))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Session:  "))
	b.WriteString(valueStyle.Render(m.sessionID))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("State:    "))
	if m.state == vocalis.StateFailed {
		detail := string(m.reason)
		if m.errMsg != "" {
			detail += ": " + m.errMsg
		}
		b.WriteString(alertStyle.Render(fmt.Sprintf("%s (%s)", m.state, detail)))
	} else {
		b.WriteString(valueStyle.Render(m.state.String()))
	}
	b.WriteString("\n")

	if m.codec != "" {
		b.WriteString(headerStyle.Render("Format:   "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s %dHz mono", m.codec, m.sampleRate)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Mic:    "))
	b.WriteString(valueStyle.Render(renderBar(float64(m.stats.InputPeak), 24)))
	b.WriteString("\n")

	volumeLabel := fmt.Sprintf(" %d%%", m.volume)
	if m.muted {
		volumeLabel += " (muted)"
	}
	b.WriteString(headerStyle.Render("Volume: "))
	b.WriteString(valueStyle.Render(renderBar(float64(m.volume)/100, 24) + volumeLabel))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Speech: "))
	b.WriteString(valueStyle.Render(renderSpectrum(m.bins)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Stats:  "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("up %d  down %d  played %d  skipped %d  gaps %d  interrupts %d",
		m.stats.ChunksSent, m.stats.ChunksReceived, m.stats.ChunksPlayed,
		m.stats.ChunksSkipped, m.stats.Gaps, m.stats.Interrupts)))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Faint(true).Render("up/down: volume  m: mute  i: interrupt  q: quit"))
	b.WriteString("\n")

	return b.String()
}

// renderBar draws a fixed-width level bar for a value in [0, 1].
func renderBar(value float64, width int) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value * float64(width))

	var bar strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			bar.WriteRune('█')
		} else {
			bar.WriteRune('░')
		}
	}
	return bar.String()
}

var spectrumGlyphs = []rune("▁▂▃▄▅▆▇█")

// renderSpectrum draws one glyph per frequency bin.
func renderSpectrum(bins []float64) string {
	if len(bins) == 0 {
		return "(waiting for audio)"
	}

	var b strings.Builder
	for _, v := range bins {
		idx := int(v * float64(len(spectrumGlyphs)))
		if idx >= len(spectrumGlyphs) {
			idx = len(spectrumGlyphs) - 1
		}
		if idx < 0 {
			idx = 0
		}
		b.WriteRune(spectrumGlyphs[idx])
	}
	return b.String()
}

// ABOUTME: TUI program wrapper and control channels
// ABOUTME: Connects keyboard intents to the session app
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls carries user intents from the TUI back to the app.
type Controls struct {
	Volume     chan int      // absolute volume, 0 to 100
	Interrupts chan struct{} // manual playback cut
	Quit       chan struct{} // user asked to leave
}

// NewControls creates the control channels.
func NewControls() *Controls {
	return &Controls{
		Volume:     make(chan int, 10),
		Interrupts: make(chan struct{}, 1),
		Quit:       make(chan struct{}, 1),
	}
}

// Run builds the TUI program on the alternate screen. The caller owns
// the program's lifecycle.
func Run(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the coordinator status screen
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// NewModel creates a TUI model with identity pre-filled.
func NewModel(name, mac string, port int) Model {
	return Model{
		name: name,
		mac:  mac,
		port: port,
	}
}

// Run starts the TUI program. The caller pushes StatusMsg values through
// p.Send and waits on p.Wait (or its own signal handling) for quit.
func Run(name, mac string, port int) *tea.Program {
	return tea.NewProgram(NewModel(name, mac, port), tea.WithAltScreen())
}

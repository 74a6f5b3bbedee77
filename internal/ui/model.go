// ABOUTME: Bubbletea model for the coordinator status TUI
// ABOUTME: Renders membership table, phone link state, and pipeline counters
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wavemesh/wavemesh-go/internal/relay"
)

// DeviceRow is one membership table line.
type DeviceRow struct {
	Name     string
	DevType  string
	Mac      string
	Active   bool
	LastSeen int64 // seconds since last heard
	Quality  int
}

// Model holds the TUI state. Bubble Tea serializes Update calls, so no
// locking is needed.
type Model struct {
	// Identity
	name string
	mac  string
	port int

	// Link
	phoneConnected bool

	// Membership
	devices []DeviceRow

	// Pipeline
	stats relay.Snapshot

	width  int
	height int
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderDevices()
	s += m.renderStats()
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	phone := "no phone"
	if m.phoneConnected {
		phone = "phone connected"
	}
	return fmt.Sprintf(`┌─ WaveMesh Coordinator ───────────────────────────────┐
│ %-52s │
│ %-52s │
├──────────────────────────────────────────────────────┤
`,
		truncate(fmt.Sprintf("%s  %s  port %d", m.name, m.mac, m.port), 52),
		phone)
}

func (m Model) renderDevices() string {
	if len(m.devices) == 0 {
		return "│ No mesh devices                                      │\n"
	}

	s := fmt.Sprintf("│ Mesh devices (%d):                                    │\n", len(m.devices))
	for _, d := range m.devices {
		state := "pending"
		if d.Active {
			state = "active"
		}
		line := fmt.Sprintf("%s %s %s %ds ago q%d", d.Name, d.Mac, state, d.LastSeen, d.Quality)
		s += fmt.Sprintf("│   %-50s │\n", truncate(line, 50))
	}
	return s
}

func (m Model) renderStats() string {
	s := m.stats
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Phone in:  %-41s │
│ Mesh out:  %-41s │
│ Mesh in:   %-41s │
│ Drops: %d  Evictions: %d  Acks: %d%-19s │
`,
		fmt.Sprintf("%d frames / %d B", s.PhoneFramesIn, s.PhoneBytesIn),
		fmt.Sprintf("%d frames / %d B", s.MeshFramesOut, s.MeshBytesOut),
		fmt.Sprintf("%d frames / %d B", s.MeshFramesIn, s.MeshBytesIn),
		s.RingDrops, s.Evictions, s.AcksReceived, "")
}

func (m Model) renderHelp() string {
	return `│ q:Quit                                               │
└──────────────────────────────────────────────────────┘
`
}

// applyStatus updates model state from a status message.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Name != "" {
		m.name = msg.Name
	}
	if msg.Mac != "" {
		m.mac = msg.Mac
	}
	if msg.Port != 0 {
		m.port = msg.Port
	}
	if msg.PhoneConnected != nil {
		m.phoneConnected = *msg.PhoneConnected
	}
	if msg.Devices != nil {
		m.devices = msg.Devices
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
	}
}

// StatusMsg updates TUI state. Nil/empty fields leave the previous value in
// place, except Devices where a non-nil empty slice clears the table.
type StatusMsg struct {
	Name           string
	Mac            string
	Port           int
	PhoneConnected *bool
	Devices        []DeviceRow
	Stats          *relay.Snapshot
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

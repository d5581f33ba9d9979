// Package tui is the terminal viewer of one session: the iteration graph,
// the current stage, the tail of the thinking transcript and the stage
// history.
//
// The Model is used from the bubbletea event loop only.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/iterview/internal/diagram"
	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/internal/streaming"
)

const (
	defaultTailLines    = 8
	defaultHistoryLines = 5
)

// SnapshotMsg delivers a new session snapshot to the model.
type SnapshotMsg struct {
	Snapshot *session.Snapshot
}

// StreamEndedMsg reports that the update stream closed.
type StreamEndedMsg struct{}

// Config configures the viewer.
type Config struct {
	Color bool
	// TailLines is how many transcript lines are shown.
	TailLines int
	// HistoryLines is how many archived stages are listed.
	HistoryLines int
	// OnAutoScroll is called when the viewer toggles the scroll lock.
	OnAutoScroll func(locked bool)
}

// Model is the bubbletea model of the viewer.
type Model struct {
	cfg     Config
	updates <-chan streaming.Update
	snap    *session.Snapshot

	width       int
	showHistory bool
	// frozen is the transcript shown while the scroll lock is held.
	frozen   []string
	locked   bool
	ended    bool
	quitting bool
}

// New creates a viewer that starts from initial and follows updates.
func New(cfg Config, initial *session.Snapshot, updates <-chan streaming.Update) Model {
	if cfg.TailLines <= 0 {
		cfg.TailLines = defaultTailLines
	}
	if cfg.HistoryLines <= 0 {
		cfg.HistoryLines = defaultHistoryLines
	}
	return Model{
		cfg:         cfg,
		updates:     updates,
		snap:        initial,
		showHistory: true,
	}
}

// Snapshot returns the snapshot currently shown.
func (m Model) Snapshot() *session.Snapshot { return m.snap }

// Init starts listening for updates.
func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.updates)
}

// waitForSnapshot blocks until the next snapshot update. Other update types
// are skipped.
func waitForSnapshot(ch <-chan streaming.Update) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		for u := range ch {
			if u.Type != streaming.UpdateSnapshot {
				continue
			}
			if snap, ok := u.Payload.(*session.Snapshot); ok {
				return SnapshotMsg{Snapshot: snap}
			}
		}
		return StreamEndedMsg{}
	}
}

// Update handles keys, resizes and snapshots.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		return m, waitForSnapshot(m.updates)

	case StreamEndedMsg:
		m.ended = true
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "h":
		m.showHistory = !m.showHistory
	case "s":
		m.locked = !m.locked
		m.frozen = nil
		if m.locked {
			m.frozen = m.tail()
		}
		if m.cfg.OnAutoScroll != nil {
			locked := m.locked
			notify := m.cfg.OnAutoScroll
			return m, func() tea.Msg {
				notify(locked)
				return nil
			}
		}
	}
	return m, nil
}

// View renders the viewer.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.snap == nil {
		return "waiting for events...\n"
	}

	var b strings.Builder
	b.WriteString(diagram.RenderASCIIWith(diagram.Build(m.snap), diagram.ASCIIOptions{Color: m.cfg.Color}))
	b.WriteString(m.denoiseLine())
	b.WriteString("\n\n")

	b.WriteString(m.stageBadge())
	b.WriteString("\n")
	for _, line := range m.transcript() {
		b.WriteString("  " + line + "\n")
	}

	if m.showHistory {
		if hist := m.historyLines(); len(hist) > 0 {
			b.WriteString("\n" + m.style().Bold(true).Render("History") + "\n")
			for _, line := range hist {
				b.WriteString("  " + line + "\n")
			}
		}
	}

	b.WriteString("\n" + m.footer())
	return b.String()
}

func (m Model) style() lipgloss.Style {
	return renderer(m.cfg.Color).NewStyle()
}

// denoiseLine lists every edge with its visual weight.
func (m Model) denoiseLine() string {
	parts := make([]string, 0, graph.EdgeCount)
	for _, id := range graph.AllEdges() {
		parts = append(parts, fmt.Sprintf("%s %s", id, m.snap.Denoise[id]))
	}
	return "edges: " + strings.Join(parts, "  ")
}

func (m Model) stageBadge() string {
	label := m.snap.StageLabel
	if label == "" {
		label = "No stage"
	}
	badge := m.style().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("99")).
		Padding(0, 1).
		Render(label)

	status := "idle"
	if m.snap.Thinking != nil {
		status = string(m.snap.Thinking.Status)
		if m.snap.Thinking.IsTruncated {
			status += ", truncated"
		}
	}
	return badge + " " + status
}

// transcript returns the lines to show: the live tail, or the frozen view
// while the scroll lock is held.
func (m Model) transcript() []string {
	if m.locked && m.frozen != nil {
		return m.frozen
	}
	return m.tail()
}

func (m Model) tail() []string {
	if m.snap == nil || m.snap.Thinking == nil || m.snap.Thinking.Text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(m.snap.Thinking.Text, "\n"), "\n")
	if len(lines) > m.cfg.TailLines {
		lines = lines[len(lines)-m.cfg.TailLines:]
	}
	return lines
}

func (m Model) historyLines() []string {
	if m.snap.Thinking == nil {
		return nil
	}
	hist := m.snap.Thinking.StageHistory
	if len(hist) > m.cfg.HistoryLines {
		hist = hist[len(hist)-m.cfg.HistoryLines:]
	}
	out := make([]string, 0, len(hist))
	for _, item := range hist {
		out = append(out, fmt.Sprintf("%s: %s (seq %d-%d)", item.Stage.Label(), item.Summary, item.StartSeq, item.EndSeq))
	}
	return out
}

func (m Model) footer() string {
	lock := "off"
	if m.locked {
		lock = "on"
	}
	help := fmt.Sprintf("q quit  h history  s scroll lock (%s)", lock)
	if m.ended {
		help = "stream ended  " + help
	}
	return m.style().Foreground(lipgloss.Color("241")).Render(help) + "\n"
}

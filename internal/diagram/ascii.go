package diagram

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/rendis/iterview/internal/graph"
)

// statusTag returns a short ASCII indicator for a node status.
func statusTag(status graph.NodeStatus) string {
	switch status {
	case graph.NodeRunning:
		return "[RUN]"
	case graph.NodeSuccess:
		return "[OK]"
	case graph.NodeError:
		return "[FAIL]"
	case graph.NodePaused:
		return "[WAIT]"
	default:
		return "[IDLE]"
	}
}

// connector draws the arrow for an edge by its denoise level.
func connector(level graph.DenoiseLevel) string {
	switch level {
	case graph.DenoiseStrong:
		return "═══▶"
	case graph.DenoiseWeak:
		return "───▶"
	default:
		return "···▶"
	}
}

var statusColors = map[graph.NodeStatus]lipgloss.Color{
	graph.NodeIdle:    lipgloss.Color("243"),
	graph.NodeRunning: lipgloss.Color("39"),
	graph.NodeSuccess: lipgloss.Color("76"),
	graph.NodeError:   lipgloss.Color("204"),
	graph.NodePaused:  lipgloss.Color("214"),
}

var levelColors = map[graph.DenoiseLevel]lipgloss.Color{
	graph.DenoiseStrong: lipgloss.Color("99"),
	graph.DenoiseWeak:   lipgloss.Color("245"),
	graph.DenoiseOff:    lipgloss.Color("238"),
}

// ASCIIOptions controls terminal rendering.
type ASCIIOptions struct {
	// Color emits 256-color ANSI sequences.
	Color bool
}

// RenderASCII renders a DiagramModel as plain text boxes joined left to
// right.
func RenderASCII(model *DiagramModel) string {
	return RenderASCIIWith(model, ASCIIOptions{})
}

// RenderASCIIWith renders a DiagramModel with the given options.
func RenderASCIIWith(model *DiagramModel, opts ASCIIOptions) string {
	r := lipgloss.NewRenderer(io.Discard)
	if opts.Color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	var b strings.Builder
	if model.Title != "" {
		b.WriteString(r.NewStyle().Bold(true).Render(fmt.Sprintf("=== %s ===", model.Title)))
		b.WriteString("\n\n")
	}

	parts := make([]string, 0, len(model.Nodes)*2)
	for i, node := range model.Nodes {
		if i > 0 {
			parts = append(parts, renderConnector(r, edgeInto(model, node.ID)))
		}
		parts = append(parts, renderBox(r, node))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, parts...))
	b.WriteByte('\n')

	if model.Stage != "" || model.Status != "" {
		b.WriteByte('\n')
		if model.Stage != "" {
			b.WriteString(r.NewStyle().Foreground(lipgloss.Color("99")).Render("stage: " + model.Stage))
			b.WriteByte('\n')
		}
		if model.Status != "" {
			b.WriteString("thinking: " + model.Status + "\n")
		}
	}
	return b.String()
}

func renderBox(r *lipgloss.Renderer, node *Node) string {
	color := statusColors[node.Status]
	content := node.Label + "\n" + statusTag(node.Status)
	return r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Foreground(color).
		Padding(0, 1).
		Align(lipgloss.Center).
		Render(content)
}

func renderConnector(r *lipgloss.Renderer, edge *Edge) string {
	if edge == nil {
		return " " + connector(graph.DenoiseOff) + " "
	}
	return r.NewStyle().
		Foreground(levelColors[edge.Level]).
		Render(" " + connector(edge.Level) + " ")
}

// edgeInto returns the edge ending at nodeID.
func edgeInto(model *DiagramModel, nodeID string) *Edge {
	for i := range model.Edges {
		if model.Edges[i].To == nodeID {
			return &model.Edges[i]
		}
	}
	return nil
}

// Package diagram renders the iteration graph of a session as ASCII, Mermaid
// or a PNG image.
package diagram

import "github.com/rendis/iterview/internal/graph"

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	// Stage is the label of the stage currently streaming, if any.
	Stage string
	// Status is the transcript status (idle, streaming, complete).
	Status string
	Nodes  []*Node
	Edges  []Edge
}

// Node is one agent of the iteration graph.
type Node struct {
	ID     string
	Label  string
	Status graph.NodeStatus
}

// Edge is a hand-off between two agents with its animation state.
type Edge struct {
	ID    string
	From  string
	To    string
	Flow  graph.FlowState
	Level graph.DenoiseLevel
	// Seq is the sequence of the event that last activated the edge, or
	// graph.NoSeq.
	Seq int64
}

func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// swatch is the look of a node status in the image renderers.
type swatch struct {
	Fill   string
	Stroke string
	Font   string
}

// nodeStatuses is the order status classes are declared in.
var nodeStatuses = []graph.NodeStatus{
	graph.NodeIdle, graph.NodeRunning, graph.NodeSuccess, graph.NodeError, graph.NodePaused,
}

var statusSwatches = map[graph.NodeStatus]swatch{
	graph.NodeIdle:    {Fill: "#6b6b6b", Stroke: "#4a4a4a", Font: "#ffffff"},
	graph.NodeRunning: {Fill: "#1a5276", Stroke: "#0e3a52", Font: "#ffffff"},
	graph.NodeSuccess: {Fill: "#2d6a2d", Stroke: "#1a4a1a", Font: "#ffffff"},
	graph.NodeError:   {Fill: "#8b1a1a", Stroke: "#5c0e0e", Font: "#ffffff"},
	graph.NodePaused:  {Fill: "#b7791a", Stroke: "#8a5c14", Font: "#ffffff"},
}

const (
	flowingColor = "#7d56f4"
	idleColor    = "#9e9e9e"
)

func swatchFor(status graph.NodeStatus) swatch {
	if s, ok := statusSwatches[status]; ok {
		return s
	}
	return statusSwatches[graph.NodeIdle]
}

package diagram

import (
	"fmt"

	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/internal/session"
)

// Build constructs a DiagramModel from a session snapshot.
func Build(snap *session.Snapshot) *DiagramModel {
	model := &DiagramModel{
		Title: titleFor(snap),
		Stage: snap.StageLabel,
		Nodes: make([]*Node, 0, graph.NodeCount),
		Edges: make([]Edge, 0, graph.EdgeCount),
	}
	if snap.Thinking != nil {
		model.Status = string(snap.Thinking.Status)
	}

	for _, id := range graph.AllNodes() {
		model.Nodes = append(model.Nodes, &Node{
			ID:     id.String(),
			Label:  id.Label(),
			Status: snap.Nodes[id],
		})
	}
	for _, id := range graph.AllEdges() {
		from, to := id.Endpoints()
		model.Edges = append(model.Edges, Edge{
			ID:    id.String(),
			From:  from.String(),
			To:    to.String(),
			Flow:  snap.Edges[id].State,
			Level: snap.Denoise[id],
			Seq:   snap.Edges[id].LastActivatedSeq,
		})
	}
	return model
}

func titleFor(snap *session.Snapshot) string {
	title := "Iteration graph"
	if snap.Iteration > 0 {
		title = fmt.Sprintf("Iteration %d", snap.Iteration)
	}
	if snap.CorrelationID != "" {
		title += " (" + snap.CorrelationID + ")"
	}
	return title
}

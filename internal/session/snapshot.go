package session

import (
	"time"

	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/internal/thinking"
	"github.com/rendis/iterview/pkg/schema"
)

// Snapshot is the complete visualization state of one session. It is the
// payload of every snapshot update.
type Snapshot struct {
	SessionID     string                  `json:"session_id"`
	CorrelationID string                  `json:"correlation_id"`
	Nodes         graph.NodeStates        `json:"nodes"`
	Edges         graph.EdgeFlowStates    `json:"edges"`
	Denoise       graph.DenoiseLevels     `json:"denoise"`
	Thinking      *thinking.State         `json:"thinking"`
	StageLabel    string                  `json:"stage_label,omitempty"`
	Pipeline      *schema.StageDescriptor `json:"pipeline,omitempty"`
	Iteration     int                     `json:"iteration"`
	EventsSeen    uint64                  `json:"events_seen"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Closed        bool                    `json:"closed"`
}

// Terminal reports whether the run has finished streaming.
func (s *Snapshot) Terminal() bool {
	return s.Thinking != nil && s.Thinking.Status == thinking.StatusComplete
}

// Vars flattens the snapshot for filter expressions.
func (s *Snapshot) Vars() map[string]any {
	nodes := make(map[string]any, graph.NodeCount)
	for _, id := range graph.AllNodes() {
		nodes[id.String()] = string(s.Nodes[id])
	}
	edges := make(map[string]any, graph.EdgeCount)
	for _, id := range graph.AllEdges() {
		edges[id.String()] = string(s.Denoise[id])
	}
	vars := map[string]any{
		"session_id":     s.SessionID,
		"correlation_id": s.CorrelationID,
		"nodes":          nodes,
		"edges":          edges,
		"iteration":      int64(s.Iteration),
		"status":         "",
		"stage":          "",
		"truncated":      false,
		"history":        int64(0),
	}
	if s.Thinking != nil {
		vars["status"] = string(s.Thinking.Status)
		vars["stage"] = string(s.Thinking.CurrentStage)
		vars["truncated"] = s.Thinking.IsTruncated
		vars["history"] = int64(len(s.Thinking.StageHistory))
	}
	if s.Pipeline != nil {
		vars["state"] = string(s.Pipeline.State)
		vars["group"] = s.Pipeline.Group
	}
	return vars
}

// Info is the listing view of a session.
type Info struct {
	SessionID     string          `json:"session_id"`
	CorrelationID string          `json:"correlation_id"`
	Status        thinking.Status `json:"status"`
	Iteration     int             `json:"iteration"`
	EventsSeen    uint64          `json:"events_seen"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Info returns the listing view of the snapshot.
func (s *Snapshot) Info() Info {
	info := Info{
		SessionID:     s.SessionID,
		CorrelationID: s.CorrelationID,
		Iteration:     s.Iteration,
		EventsSeen:    s.EventsSeen,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Thinking != nil {
		info.Status = s.Thinking.Status
	}
	return info
}

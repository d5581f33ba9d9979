// Package graph holds the fixed four-node iteration graph and the pure
// functions that derive its visual state from backend events.
package graph

import (
	"encoding/json"
	"fmt"
)

// NodeID indexes a node of the iteration graph.
type NodeID int

const (
	PatternExtractor NodeID = iota
	PromptEngineer
	QualityAssessor
	ReflectionAgent

	NodeCount = 4
)

var nodeNames = [NodeCount]string{
	"pattern_extractor",
	"prompt_engineer",
	"quality_assessor",
	"reflection_agent",
}

var nodeLabels = [NodeCount]string{
	"Pattern Extractor",
	"Prompt Engineer",
	"Quality Assessor",
	"Reflection Agent",
}

func (n NodeID) String() string {
	if n < 0 || int(n) >= NodeCount {
		return fmt.Sprintf("node(%d)", int(n))
	}
	return nodeNames[n]
}

// Label returns the display label of the node.
func (n NodeID) Label() string {
	if n < 0 || int(n) >= NodeCount {
		return n.String()
	}
	return nodeLabels[n]
}

// AllNodes returns node ids in graph order.
func AllNodes() []NodeID {
	return []NodeID{PatternExtractor, PromptEngineer, QualityAssessor, ReflectionAgent}
}

// EdgeID indexes an edge. The ordinal is the tiebreaker used by denoising.
type EdgeID int

const (
	EdgePatternPrompt EdgeID = iota
	EdgePromptQuality
	EdgeQualityReflection

	EdgeCount = 3
)

var edgeNames = [EdgeCount]string{
	"pattern->prompt",
	"prompt->quality",
	"quality->reflection",
}

func (e EdgeID) String() string {
	if e < 0 || int(e) >= EdgeCount {
		return fmt.Sprintf("edge(%d)", int(e))
	}
	return edgeNames[e]
}

// Endpoints returns the source and target node of the edge.
func (e EdgeID) Endpoints() (NodeID, NodeID) {
	return NodeID(e), NodeID(e) + 1
}

// AllEdges returns edge ids in ordinal order.
func AllEdges() []EdgeID {
	return []EdgeID{EdgePatternPrompt, EdgePromptQuality, EdgeQualityReflection}
}

// NodeStatus is the visual status of a single node.
type NodeStatus string

const (
	NodeIdle    NodeStatus = "idle"
	NodeRunning NodeStatus = "running"
	NodeSuccess NodeStatus = "success"
	NodeError   NodeStatus = "error"
	NodePaused  NodeStatus = "paused"
)

// NodeStates is the status of every node, indexed by NodeID.
type NodeStates [NodeCount]NodeStatus

// InitialNodeStates returns all nodes idle.
func InitialNodeStates() NodeStates {
	return NodeStates{NodeIdle, NodeIdle, NodeIdle, NodeIdle}
}

// MarshalJSON encodes the states keyed by node name.
func (s NodeStates) MarshalJSON() ([]byte, error) {
	m := make(map[string]NodeStatus, NodeCount)
	for i, st := range s {
		m[nodeNames[i]] = st
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes states keyed by node name. Missing nodes are idle.
func (s *NodeStates) UnmarshalJSON(data []byte) error {
	var m map[string]NodeStatus
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = InitialNodeStates()
	for i, name := range nodeNames {
		if st, ok := m[name]; ok {
			s[i] = st
		}
	}
	return nil
}

// FlowState is the animation phase of an edge.
type FlowState string

const (
	FlowIdle     FlowState = "idle"
	FlowFlowing  FlowState = "flowing"
	FlowCooldown FlowState = "cooldown"
)

// NoSeq marks an edge that has never been activated.
const NoSeq int64 = -1

// EdgeFlow is the animation state of one edge.
type EdgeFlow struct {
	State            FlowState `json:"state"`
	LastActivatedSeq int64     `json:"last_activated_seq"`
}

// Active reports whether the edge is flowing or cooling down.
func (f EdgeFlow) Active() bool { return f.State != FlowIdle }

// EdgeFlowStates is the flow state of every edge, indexed by EdgeID.
type EdgeFlowStates [EdgeCount]EdgeFlow

// InitialEdgeFlowStates returns every edge idle with no activation.
func InitialEdgeFlowStates() EdgeFlowStates {
	var s EdgeFlowStates
	for i := range s {
		s[i] = EdgeFlow{State: FlowIdle, LastActivatedSeq: NoSeq}
	}
	return s
}

// MarshalJSON encodes the flows keyed by edge name.
func (s EdgeFlowStates) MarshalJSON() ([]byte, error) {
	m := make(map[string]EdgeFlow, EdgeCount)
	for i, f := range s {
		m[edgeNames[i]] = f
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes flows keyed by edge name.
func (s *EdgeFlowStates) UnmarshalJSON(data []byte) error {
	var m map[string]EdgeFlow
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = InitialEdgeFlowStates()
	for i, name := range edgeNames {
		if f, ok := m[name]; ok {
			s[i] = f
		}
	}
	return nil
}

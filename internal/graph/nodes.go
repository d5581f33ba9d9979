package graph

import "github.com/rendis/iterview/pkg/schema"

// progressNodeStates is the full replacement applied for each mapped state.
var progressNodeStates = map[schema.PipelineState]NodeStates{
	schema.StateRunningTests:      {NodeRunning, NodeIdle, NodeIdle, NodeIdle},
	schema.StateEvaluating:        {NodeSuccess, NodeRunning, NodeRunning, NodeIdle},
	schema.StateWaitingUser:       {NodeSuccess, NodeSuccess, NodeSuccess, NodePaused},
	schema.StateHumanIntervention: {NodeSuccess, NodeSuccess, NodeSuccess, NodePaused},
	schema.StateFailed:            {NodeSuccess, NodeSuccess, NodeSuccess, NodeError},
	schema.StateCompleted:         {NodeSuccess, NodeSuccess, NodeSuccess, NodeSuccess},
}

// ReduceNodes folds one event into the node states.
//
// Progress events for a mapped state replace every node. Stream events mark
// the reflection agent running. Everything else returns prev unchanged.
// No ordering is enforced here: last write wins.
func ReduceNodes(prev NodeStates, ev schema.Event) NodeStates {
	switch {
	case ev.IsProgress():
		if next, ok := progressNodeStates[ev.Progress.State]; ok {
			return next
		}
		return prev
	case ev.IsStream():
		next := prev
		next[ReflectionAgent] = NodeRunning
		return next
	default:
		return prev
	}
}

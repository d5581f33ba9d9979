package schema

import "time"

// EventKind discriminates the payload carried by an Event.
type EventKind string

const (
	KindProgress EventKind = "progress"
	KindStream   EventKind = "stream"
)

// PipelineState is the backend iteration state reported by progress events.
type PipelineState string

const (
	StateIdle                 PipelineState = "idle"
	StateInitializing         PipelineState = "initializing"
	StateExtractingRules      PipelineState = "extracting_rules"
	StateDetectingConflicts   PipelineState = "detecting_conflicts"
	StateResolvingConflicts   PipelineState = "resolving_conflicts"
	StateMergingSimilarRules  PipelineState = "merging_similar_rules"
	StateValidatingRules      PipelineState = "validating_rules"
	StateGeneratingPrompt     PipelineState = "generating_prompt"
	StateRunningTests         PipelineState = "running_tests"
	StateEvaluating           PipelineState = "evaluating"
	StateClusteringFailures   PipelineState = "clustering_failures"
	StateReflecting           PipelineState = "reflecting"
	StateUpdatingRules        PipelineState = "updating_rules"
	StateOptimizing           PipelineState = "optimizing"
	StateSmartRetesting       PipelineState = "smart_retesting"
	StateSafetyChecking       PipelineState = "safety_checking"
	StateWaitingUser          PipelineState = "waiting_user"
	StateHumanIntervention    PipelineState = "human_intervention"
	StateCompleted            PipelineState = "completed"
	StateMaxIterationsReached PipelineState = "max_iterations_reached"
	StateUserStopped          PipelineState = "user_stopped"
	StateFailed               PipelineState = "failed"
)

// IsTerminal reports whether the state ends the streaming transcript.
// Only completed and failed close it; the other terminal-group states are
// reported by the catalog but leave the transcript open.
func (s PipelineState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StageTag identifies which pipeline stage produced streamed text.
type StageTag string

const (
	StagePattern    StageTag = "pattern"
	StagePrompt     StageTag = "prompt"
	StageQuality    StageTag = "quality"
	StageReflection StageTag = "reflection"
)

var stageLabels = map[StageTag]string{
	StagePattern:    "Extracting patterns",
	StagePrompt:     "Generating candidates",
	StageQuality:    "Assessing quality",
	StageReflection: "Reflecting",
}

// Label returns the human-readable badge text for the stage, or the raw tag
// when the stage is unknown.
func (t StageTag) Label() string {
	if l, ok := stageLabels[t]; ok {
		return l
	}
	return string(t)
}

// Valid reports whether t is one of the four known stage tags.
func (t StageTag) Valid() bool {
	_, ok := stageLabels[t]
	return ok
}

// ProgressPayload carries a pipeline-state report.
type ProgressPayload struct {
	Iteration int           `json:"iteration"`
	State     PipelineState `json:"state"`
	Step      string        `json:"step"`
	Stage     StageTag      `json:"stage,omitempty"`
}

// StreamPayload carries a chunk of streamed text.
type StreamPayload struct {
	Content string `json:"content"`
}

// Event is a single ordered message from the optimization backend.
// Exactly one of Progress or Stream is set for known kinds.
type Event struct {
	Kind          EventKind        `json:"kind"`
	Sequence      int64            `json:"seq"`
	CorrelationID string           `json:"correlation_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Progress      *ProgressPayload `json:"progress,omitempty"`
	Stream        *StreamPayload   `json:"stream,omitempty"`
}

// NewProgressEvent creates a progress event.
func NewProgressEvent(correlationID string, seq int64, iteration int, state PipelineState, step string, stage StageTag) Event {
	return Event{
		Kind:          KindProgress,
		Sequence:      seq,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Progress:      &ProgressPayload{Iteration: iteration, State: state, Step: step, Stage: stage},
	}
}

// NewStreamEvent creates a stream event.
func NewStreamEvent(correlationID string, seq int64, content string) Event {
	return Event{
		Kind:          KindStream,
		Sequence:      seq,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Stream:        &StreamPayload{Content: content},
	}
}

// State returns the progress state, or "" for non-progress events.
func (e Event) State() PipelineState {
	if e.Kind != KindProgress || e.Progress == nil {
		return ""
	}
	return e.Progress.State
}

// IsProgress reports whether e carries a progress payload.
func (e Event) IsProgress() bool { return e.Kind == KindProgress && e.Progress != nil }

// IsStream reports whether e carries a stream payload.
func (e Event) IsStream() bool { return e.Kind == KindStream && e.Stream != nil }

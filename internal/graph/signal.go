package graph

import "github.com/rendis/iterview/pkg/schema"

// SignalKind classifies how an event drives edge animation.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalActivate
	SignalEndAll
)

// ActivationKind selects the flow-decay duration of an activation.
type ActivationKind int

const (
	ActivationPulse ActivationKind = iota
	ActivationStream
)

func (k ActivationKind) String() string {
	if k == ActivationStream {
		return "stream"
	}
	return "pulse"
}

// EdgeSignal is the edge-level effect of one event.
type EdgeSignal struct {
	Kind       SignalKind
	Edges      []EdgeID
	Activation ActivationKind
	Seq        int64
}

// SignalFor maps an event to its edge signal.
func SignalFor(ev schema.Event) EdgeSignal {
	switch {
	case ev.IsProgress():
		switch ev.Progress.State {
		case schema.StateRunningTests:
			return EdgeSignal{Kind: SignalActivate, Edges: []EdgeID{EdgePatternPrompt}, Activation: ActivationPulse, Seq: ev.Sequence}
		case schema.StateEvaluating:
			return EdgeSignal{Kind: SignalActivate, Edges: []EdgeID{EdgePromptQuality, EdgePatternPrompt}, Activation: ActivationPulse, Seq: ev.Sequence}
		case schema.StateWaitingUser, schema.StateHumanIntervention, schema.StateCompleted, schema.StateFailed:
			return EdgeSignal{Kind: SignalEndAll, Seq: ev.Sequence}
		}
	case ev.IsStream():
		return EdgeSignal{Kind: SignalActivate, Edges: []EdgeID{EdgeQualityReflection}, Activation: ActivationStream, Seq: ev.Sequence}
	}
	return EdgeSignal{Kind: SignalNone, Seq: ev.Sequence}
}

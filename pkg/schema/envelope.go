package schema

import (
	"encoding/json"
	"time"
)

// Wire message types used by the optimization backend.
const (
	MessageTypeProgress = "iteration:progress"
	MessageTypeStream   = "thinking:stream"
)

// Envelope is the JSON shape delivered over the backend's WebSocket.
type Envelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Timestamp     string          `json:"timestamp"`
	Payload       EnvelopePayload `json:"payload"`
}

// EnvelopePayload is the union of progress and stream payloads, discriminated
// by Kind.
type EnvelopePayload struct {
	Kind      EventKind     `json:"kind"`
	Seq       int64         `json:"seq"`
	Iteration int           `json:"iteration,omitempty"`
	State     PipelineState `json:"state,omitempty"`
	Step      string        `json:"step,omitempty"`
	Stage     StageTag      `json:"stage,omitempty"`
	Content   string        `json:"content,omitempty"`
}

// DecodeEnvelope parses a raw wire message into an Event.
// Unknown message types or kinds decode to an Event with that Kind and no
// payload, which every reducer treats as a no-op.
func DecodeEnvelope(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, NewError(ErrCodeDecode, "malformed envelope").WithCause(err)
	}
	return env.ToEvent()
}

// ToEvent converts the envelope into the internal Event model.
func (env Envelope) ToEvent() (Event, error) {
	ev := Event{
		Kind:          env.Payload.Kind,
		Sequence:      env.Payload.Seq,
		CorrelationID: env.CorrelationID,
	}
	if env.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
		if err != nil {
			return Event{}, NewErrorf(ErrCodeDecode, "invalid timestamp %q", env.Timestamp).
				WithCorrelation(env.CorrelationID).WithCause(err)
		}
		ev.Timestamp = ts
	}

	switch {
	case env.Type == MessageTypeProgress && env.Payload.Kind == KindProgress:
		ev.Progress = &ProgressPayload{
			Iteration: env.Payload.Iteration,
			State:     env.Payload.State,
			Step:      env.Payload.Step,
			Stage:     env.Payload.Stage,
		}
	case env.Type == MessageTypeStream && env.Payload.Kind == KindStream:
		ev.Stream = &StreamPayload{Content: env.Payload.Content}
	}
	return ev, nil
}

// EnvelopeFromEvent converts an Event back into its wire shape.
func EnvelopeFromEvent(ev Event) Envelope {
	env := Envelope{
		CorrelationID: ev.CorrelationID,
		Payload:       EnvelopePayload{Kind: ev.Kind, Seq: ev.Sequence},
	}
	if !ev.Timestamp.IsZero() {
		env.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	switch {
	case ev.IsProgress():
		env.Type = MessageTypeProgress
		env.Payload.Iteration = ev.Progress.Iteration
		env.Payload.State = ev.Progress.State
		env.Payload.Step = ev.Progress.Step
		env.Payload.Stage = ev.Progress.Stage
	case ev.IsStream():
		env.Type = MessageTypeStream
		env.Payload.Content = ev.Stream.Content
	}
	return env
}

// EncodeEnvelope marshals ev in wire form.
func EncodeEnvelope(ev Event) ([]byte, error) {
	return json.Marshal(EnvelopeFromEvent(ev))
}

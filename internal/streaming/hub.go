package streaming

import (
	"context"

	"github.com/rendis/iterview/pkg/schema"
)

// Update types published by sessions.
const (
	UpdateSnapshot      = "snapshot"
	UpdateSessionOpened = "session.opened"
	UpdateSessionClosed = "session.closed"
)

// Update is a real-time notification about a visualization session.
type Update struct {
	SessionID     string `json:"session_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Type          string `json:"type"`
	Seq           uint64 `json:"seq"`
	Payload       any    `json:"payload,omitempty"`

	// Event is the backend event that caused the update, if any.
	Event *schema.Event `json:"-"`
	// Vars is a flat summary of the session exposed to filter expressions
	// as `snapshot`.
	Vars map[string]any `json:"-"`
}

// UpdateFilter specifies which updates a subscriber wants to receive.
type UpdateFilter struct {
	SessionID     string   `json:"session_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Types         []string `json:"types,omitempty"`
	// Expression is an optional CEL predicate over `event` and `snapshot`.
	Expression string `json:"expression,omitempty"`
}

// UpdateHub provides pub/sub for real-time session updates.
type UpdateHub interface {
	Publish(ctx context.Context, update Update) error
	Subscribe(ctx context.Context, filter UpdateFilter) (<-chan Update, func(), error)
}

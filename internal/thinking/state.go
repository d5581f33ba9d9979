// Package thinking reduces the streamed "thinking" transcript of one run into
// a bounded text buffer with per-stage history.
package thinking

import "github.com/rendis/iterview/pkg/schema"

// Status is the lifecycle of the transcript.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

const (
	DefaultMaxChars = 10000
	DefaultMaxLines = 500

	// MaxStageHistory is how many archived stages are kept, newest last.
	MaxStageHistory = 20

	// NoSeq marks an unset sequence number.
	NoSeq int64 = -1
)

// StageHistoryItem is the archived output of one completed stage.
type StageHistoryItem struct {
	Stage    schema.StageTag `json:"stage"`
	Summary  string          `json:"summary"`
	Text     string          `json:"text"`
	StartSeq int64           `json:"start_seq"`
	EndSeq   int64           `json:"end_seq"`
}

// State is the transcript of a single correlation scope.
//
// States are immutable once returned by a reducer function: every change
// yields a new *State, and a no-op returns the same pointer.
type State struct {
	// CorrelationID is "" until the first event carrying one binds it.
	CorrelationID string `json:"correlation_id"`
	// CurrentStage is "" until a progress event tags a stage.
	CurrentStage schema.StageTag `json:"current_stage,omitempty"`
	// CurrentStageStartSeq is NoSeq when CurrentStage is unset.
	CurrentStageStartSeq int64              `json:"current_stage_start_seq"`
	StageHistory         []StageHistoryItem `json:"stage_history"`
	Text                 string             `json:"text"`
	IsTruncated          bool               `json:"is_truncated"`
	MaxChars             int                `json:"max_chars"`
	MaxLines             int                `json:"max_lines"`
	Status               Status             `json:"status"`
	LastSequence         int64              `json:"last_seq"`
	IsAutoScrollLocked   bool               `json:"is_auto_scroll_locked"`
}

// Initial returns a fresh idle state.
func Initial() *State {
	return &State{
		CurrentStageStartSeq: NoSeq,
		StageHistory:         []StageHistoryItem{},
		MaxChars:             DefaultMaxChars,
		MaxLines:             DefaultMaxLines,
		Status:               StatusIdle,
		LastSequence:         NoSeq,
	}
}

// Reset returns a fresh initial state.
func Reset() *State {
	return Initial()
}

// ForceComplete marks a streaming transcript complete. Any other status
// returns s itself.
func ForceComplete(s *State) *State {
	if s == nil || s.Status != StatusStreaming {
		return s
	}
	next := *s
	next.Status = StatusComplete
	return &next
}

// SetAutoScrollLocked records whether the viewer pinned the scroll position.
// An unchanged value returns s itself.
func SetAutoScrollLocked(s *State, locked bool) *State {
	if s == nil || s.IsAutoScrollLocked == locked {
		return s
	}
	next := *s
	next.IsAutoScrollLocked = locked
	return &next
}

// Stage returns the history item that covers seq, if any.
func (s *State) Stage(seq int64) (StageHistoryItem, bool) {
	for _, item := range s.StageHistory {
		if seq >= item.StartSeq && seq <= item.EndSeq {
			return item, true
		}
	}
	return StageHistoryItem{}, false
}

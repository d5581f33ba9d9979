package validation

import (
	"fmt"

	"github.com/rendis/iterview/pkg/schema"
)

// Issue codes reported by CheckEvent.
const (
	IssueUnknownKind    = "UNKNOWN_KIND"
	IssueKindMismatch   = "KIND_MISMATCH"
	IssueUnknownState   = "UNKNOWN_STATE"
	IssueUnknownStage   = "UNKNOWN_STAGE"
	IssueNoCorrelation  = "NO_CORRELATION"
	IssueEmptyContent   = "EMPTY_CONTENT"
	IssueNegativeNumber = "NEGATIVE_NUMBER"
)

// CheckEvent reports problems with a decoded event. Anything the reducers
// silently ignore is a warning; values that can never be valid are errors.
func CheckEvent(ev schema.Event) schema.Issues {
	var issues schema.Issues

	if ev.Sequence < 0 {
		issues.Reject("payload.seq", IssueNegativeNumber,
			fmt.Sprintf("sequence must be non-negative, got %d", ev.Sequence))
	}
	if ev.CorrelationID == "" {
		issues.Warn("correlationId", IssueNoCorrelation,
			"event has no correlation id and joins the anonymous session")
	}

	switch ev.Kind {
	case schema.KindProgress:
		if ev.Progress == nil {
			issues.Warn("type", IssueKindMismatch, "progress payload sent with a non-progress message type; ignored")
			break
		}
		checkProgress(ev.Progress, &issues)
	case schema.KindStream:
		if ev.Stream == nil {
			issues.Warn("type", IssueKindMismatch, "stream payload sent with a non-stream message type; ignored")
			break
		}
		if ev.Stream.Content == "" {
			issues.Warn("payload.content", IssueEmptyContent, "stream chunk is empty")
		}
	default:
		issues.Warn("payload.kind", IssueUnknownKind,
			fmt.Sprintf("unknown payload kind %q; ignored", ev.Kind))
	}

	return issues
}

func checkProgress(p *schema.ProgressPayload, issues *schema.Issues) {
	if p.Iteration < 0 {
		issues.Reject("payload.iteration", IssueNegativeNumber,
			fmt.Sprintf("iteration must be non-negative, got %d", p.Iteration))
	}
	if !schema.KnownState(p.State) {
		issues.Warn("payload.state", IssueUnknownState,
			fmt.Sprintf("unknown pipeline state %q", p.State))
	}
	if p.Stage != "" && !p.Stage.Valid() {
		issues.Warn("payload.stage", IssueUnknownStage,
			fmt.Sprintf("unknown stage tag %q", p.Stage))
	}
}

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/pkg/schema"
)

func codes(issues schema.Issues) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestCheckEvent(t *testing.T) {
	tests := []struct {
		name     string
		ev       schema.Event
		errors   []string
		warnings []string
	}{
		{
			name:     "clean progress",
			ev:       schema.NewProgressEvent("c-1", 1, 1, schema.StateRunningTests, "", schema.StagePattern),
			errors:   []string{},
			warnings: []string{},
		},
		{
			name:     "clean stream",
			ev:       schema.NewStreamEvent("c-1", 2, "token"),
			errors:   []string{},
			warnings: []string{},
		},
		{
			name:     "no correlation",
			ev:       schema.NewStreamEvent("", 2, "token"),
			errors:   []string{},
			warnings: []string{IssueNoCorrelation},
		},
		{
			name:     "empty chunk",
			ev:       schema.NewStreamEvent("c-1", 2, ""),
			errors:   []string{},
			warnings: []string{IssueEmptyContent},
		},
		{
			name:     "unknown state and stage",
			ev:       schema.NewProgressEvent("c-1", 3, 1, "warping", "", "dreaming"),
			errors:   []string{},
			warnings: []string{IssueUnknownState, IssueUnknownStage},
		},
		{
			name:     "negative numbers",
			ev:       schema.NewProgressEvent("c-1", -1, -2, schema.StateEvaluating, "", ""),
			errors:   []string{IssueNegativeNumber, IssueNegativeNumber},
			warnings: []string{},
		},
		{
			name:     "unknown kind",
			ev:       schema.Event{Kind: "lifecycle", CorrelationID: "c-1", Sequence: 1},
			errors:   []string{},
			warnings: []string{IssueUnknownKind},
		},
		{
			name:     "kind without payload",
			ev:       schema.Event{Kind: schema.KindStream, CorrelationID: "c-1", Sequence: 1},
			errors:   []string{},
			warnings: []string{IssueKindMismatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := CheckEvent(tt.ev)
			assert.Equal(t, tt.errors, codes(issues.Rejections()))
			assert.Equal(t, tt.warnings, codes(issues.Warnings()))
		})
	}
}

func TestCheckEvent_Err(t *testing.T) {
	err := CheckEvent(schema.NewStreamEvent("c-1", -5, "x")).Err(schema.ErrCodeValidation)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), "non-negative")
}

package thinking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/pkg/schema"
)

func TestExprSummarizer(t *testing.T) {
	sum, err := ExprSummarizer(`label + " (" + string(len(lines)) + " lines)"`, nil)
	require.NoError(t, err)

	got := sum(StageHistoryItem{Stage: schema.StageQuality, Text: "a\nb", StartSeq: 1, EndSeq: 4})
	assert.Equal(t, "Assessing quality (2 lines)", got)
}

func TestExprSummarizer_EmptyResultFallsBack(t *testing.T) {
	sum, err := ExprSummarizer(`""`, nil)
	require.NoError(t, err)
	assert.Equal(t, "head", sum(StageHistoryItem{Text: "head\ntail"}))
}

func TestExprSummarizer_CompileError(t *testing.T) {
	_, err := ExprSummarizer(`first_line +`, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestExprSummarizer_RuntimeErrorFallsBack(t *testing.T) {
	sum, err := ExprSummarizer(`lines[5]`, nil)
	require.NoError(t, err)
	assert.Equal(t, "head", sum(StageHistoryItem{Text: "head"}))
}

func TestFirstLineSummary(t *testing.T) {
	assert.Equal(t, "Pattern output", FirstLineSummary(StageHistoryItem{Text: "Pattern output"}))
	assert.Equal(t, "x", FirstLineSummary(StageHistoryItem{Text: "\n x \ny"}))
}

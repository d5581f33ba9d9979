package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssues_WarningsDoNotReject(t *testing.T) {
	var is Issues
	is.Warn("correlationId", "NO_CORRELATION", "joins the anonymous session")

	assert.NoError(t, is.Err(ErrCodeValidation))
	assert.Empty(t, is.Rejections())
	require.Len(t, is.Warnings(), 1)
	assert.True(t, is.Warnings()[0].Warning)
}

func TestIssues_SingleRejection(t *testing.T) {
	var is Issues
	is.Reject("payload.seq", "NEGATIVE_NUMBER", "sequence must be non-negative")

	err := is.Err(ErrCodeValidation)
	require.Error(t, err)

	var ve *ViewError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ErrCodeValidation, ve.Code)
	assert.Equal(t, "payload.seq: sequence must be non-negative", ve.Message)
	assert.Equal(t, is, ve.Details["errors"])
}

func TestIssues_ErrKeepsOrderAndCode(t *testing.T) {
	var is Issues
	is.Warn("payload.state", "UNKNOWN_STATE", "unknown pipeline state")
	is.Reject("listen_addr", "required", "missing")
	is.Reject("", "required", "source url missing")

	err := is.Err(ErrCodeConfig)
	assert.True(t, HasCode(err, ErrCodeConfig))
	assert.ErrorContains(t, err, "listen_addr: missing (and 1 more)")

	var ve *ViewError
	require.ErrorAs(t, err, &ve)
	rejected := ve.Details["errors"].(Issues)
	require.Len(t, rejected, 2)
	assert.Equal(t, "source url missing", rejected[1].String())
	assert.Len(t, ve.Details["warnings"], 1)
}

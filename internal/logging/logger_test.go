package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, lv := New(&buf, "warn", "json")

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	lv.Set(slog.LevelInfo)
	logger.InfoContext(WithCorrelationID(context.Background(), "c-1"), "shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"correlation_id":"c-1"`)
}

func TestNew_AutoFormatOnBufferIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, "info", "auto")
	logger.Info("x")
	assert.Contains(t, buf.String(), `"msg":"x"`)
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, "info", "text")
	logger.Info("x")
	assert.Contains(t, buf.String(), "msg=x")
}

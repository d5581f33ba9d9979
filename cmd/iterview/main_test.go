package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/internal/source"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/pkg/schema"
)

func noEnv(string) string { return "" }

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(noEnv)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "settings.yaml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeDemoRecording writes the demo run for corr as a JSONL recording.
func writeDemoRecording(t *testing.T, corr string, iterations, tokens int) string {
	t.Helper()
	events, err := source.DemoEvents(corr, iterations, tokens)
	require.NoError(t, err)

	var buf bytes.Buffer
	for _, ev := range events {
		line, err := schema.EncodeEnvelope(ev)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	path := filepath.Join(t.TempDir(), "run.jsonl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "mcp", "watch", "demo", "replay", "render", "stages", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	version = "v9.9.9-test"
	t.Cleanup(func() { version = "dev" })

	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "iterview v9.9.9-test")
}

func TestStagesCommand(t *testing.T) {
	out, err := executeCommand(t, "stages")
	require.NoError(t, err)
	assert.Contains(t, out, "ORDER")
	assert.Contains(t, out, "running_tests")
	assert.Contains(t, out, "Waiting for user")
}

func TestStagesCommand_JSON(t *testing.T) {
	out, err := executeCommand(t, "stages", "--format", "json")
	require.NoError(t, err)

	var stages []schema.StageDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &stages))
	require.Len(t, stages, len(schema.AllStages()))
	assert.Equal(t, schema.StateIdle, stages[0].State)
	assert.Equal(t, schema.StateFailed, stages[len(stages)-1].State)
}

func TestReplayCommand_JSON(t *testing.T) {
	path := writeDemoRecording(t, "run-7", 1, 2)

	out, err := executeCommand(t, "replay", path, "--log-level", "error")
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "run-7", snap["correlation_id"])
	assert.EqualValues(t, 6, snap["events_seen"])
	assert.EqualValues(t, 1, snap["iteration"])

	thinking, ok := snap["thinking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "complete", thinking["status"])
}

func TestReplayCommand_SessionFilter(t *testing.T) {
	path := writeDemoRecording(t, "run-7", 1, 1)

	_, err := executeCommand(t, "replay", path, "--session", "other", "--log-level", "error")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestRenderCommand_Mermaid(t *testing.T) {
	path := writeDemoRecording(t, "run-8", 2, 1)

	out, err := executeCommand(t, "render", path, "--format", "mermaid", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, `pattern_extractor["Pattern Extractor"]`)
}

func TestRenderCommand_ASCIIToFile(t *testing.T) {
	path := writeDemoRecording(t, "run-9", 1, 1)
	target := filepath.Join(t.TempDir(), "graph.txt")

	out, err := executeCommand(t, "render", path, "-o", target, "--color", "never", "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Pattern Extractor")
	assert.NotContains(t, string(data), "\x1b[")
}

func TestRenderCommand_UnknownFormat(t *testing.T) {
	path := writeDemoRecording(t, "run-9", 1, 1)

	_, err := executeCommand(t, "render", path, "--format", "svg")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestReplayCommand_MissingFile(t *testing.T) {
	_, err := executeCommand(t, "replay", filepath.Join(t.TempDir(), "absent.jsonl"), "--log-level", "error")
	require.Error(t, err)
}

func TestDemoCommand_NonInteractive(t *testing.T) {
	out, err := executeCommand(t, "demo", "--session", "demo-x", "--iterations", "1", "--tokens", "1",
		"--interval", "1ms", "--color", "never", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Reflection Agent")
}

func TestWatchCommand_NeedsSource(t *testing.T) {
	_, err := executeCommand(t, "watch", "--log-level", "error")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))
}

func TestCommand_RejectsInvalidFlag(t *testing.T) {
	_, err := executeCommand(t, "watch", "--source", "carrier-pigeon")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))
}

func TestPinnedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan streaming.Update, 4)
	in <- streaming.Update{CorrelationID: "a", Seq: 1}
	in <- streaming.Update{CorrelationID: "b", Seq: 2}
	in <- streaming.Update{CorrelationID: "a", Seq: 3}
	close(in)

	pin := &pinnedRun{}
	var seqs []uint64
	for u := range pin.follow(ctx, in) {
		seqs = append(seqs, u.Seq)
	}
	assert.Equal(t, []uint64{1, 3}, seqs)

	corr, ok := pin.get()
	assert.True(t, ok)
	assert.Equal(t, "a", corr)
}

package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderASCII(t *testing.T) {
	output := RenderASCII(Build(midRunSnapshot()))

	assert.Contains(t, output, "=== Iteration 2 (run-42) ===")
	for _, label := range []string{"Pattern Extractor", "Prompt Engineer", "Quality Assessor", "Reflection Agent"} {
		assert.Contains(t, output, label)
	}
	assert.Contains(t, output, "[OK]")
	assert.Contains(t, output, "[RUN]")
	assert.Contains(t, output, "[IDLE]")
	assert.Contains(t, output, "[WAIT]")

	// Rounded borders.
	assert.Contains(t, output, "╭")
	assert.Contains(t, output, "╯")

	assert.Contains(t, output, "stage: Extracting patterns")
	assert.Contains(t, output, "thinking: streaming")
	assert.NotContains(t, output, "\x1b[")
}

func TestRenderASCII_ConnectorsFollowDenoise(t *testing.T) {
	output := RenderASCII(Build(midRunSnapshot()))

	// Both active edges are strong, the idle one is dotted.
	assert.Equal(t, 2, strings.Count(output, "═══▶"))
	assert.Equal(t, 1, strings.Count(output, "···▶"))
	assert.NotContains(t, output, "───▶")
}

func TestRenderASCII_Color(t *testing.T) {
	output := RenderASCIIWith(Build(midRunSnapshot()), ASCIIOptions{Color: true})

	assert.Contains(t, output, "\x1b[")
	assert.Contains(t, output, "Prompt Engineer")
}

func TestRenderASCII_NoFooterWhenIdle(t *testing.T) {
	snap := midRunSnapshot()
	snap.StageLabel = ""
	snap.Thinking = nil

	output := RenderASCII(Build(snap))
	assert.NotContains(t, output, "stage:")
	assert.NotContains(t, output, "thinking:")
}

package expressions

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/iterview/pkg/schema"
)

// SummaryInput is the environment of a stage summary expression.
type SummaryInput struct {
	Text      string   `expr:"text"`
	Stage     string   `expr:"stage"`
	Label     string   `expr:"label"`
	Lines     []string `expr:"lines"`
	FirstLine string   `expr:"first_line"`
	StartSeq  int64    `expr:"start_seq"`
	EndSeq    int64    `expr:"end_seq"`
}

// NewSummaryInput describes one archived stage.
func NewSummaryInput(stage schema.StageTag, text string, startSeq, endSeq int64) SummaryInput {
	return SummaryInput{
		Text:      text,
		Stage:     string(stage),
		Label:     stage.Label(),
		Lines:     strings.Split(text, "\n"),
		FirstLine: FirstLine(text),
		StartSeq:  startSeq,
		EndSeq:    endSeq,
	}
}

// SummaryProgram is a compiled expr program producing a stage summary.
// Unknown identifiers fail at compile time.
type SummaryProgram struct {
	source string
	prg    *vm.Program
}

// CompileSummary compiles source against SummaryInput.
func CompileSummary(source string) (*SummaryProgram, error) {
	if strings.TrimSpace(source) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty summary expression")
	}
	prg, err := expr.Compile(source, expr.Env(SummaryInput{}))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"summary expression %q: %s", source, err).
			WithCause(err).
			WithDetails(map[string]any{"expression": source})
	}
	return &SummaryProgram{source: source, prg: prg}, nil
}

// Run evaluates the program. Non-string results are formatted with fmt;
// nil becomes "".
func (p *SummaryProgram) Run(in SummaryInput) (string, error) {
	out, err := vm.Run(p.prg, in)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeEvaluation,
			"summary expression %q: %s", p.source, err).
			WithCause(err).
			WithDetails(map[string]any{"expression": p.source})
	}
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

// FirstLine returns the first non-blank line of text, trimmed.
func FirstLine(text string) string {
	for line := range strings.SplitSeq(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}

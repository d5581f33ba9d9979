package expressions

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/rendis/iterview/pkg/schema"
)

// MappingIndexVar is bound to the ordinal of the message being mapped, so
// producers without their own counter can derive a seq from it.
const MappingIndexVar = "$index"

// Mapping is a compiled jq program that reshapes one foreign message into
// zero or more wire envelopes. A Mapping is immutable once compiled and safe
// for concurrent use.
type Mapping struct {
	source string
	code   *gojq.Code
}

// CompileMapping parses and compiles a jq program. $ENV and env are empty.
func CompileMapping(source string) (*Mapping, error) {
	if source == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq mapping")
	}
	query, err := gojq.Parse(source)
	if err != nil {
		return nil, mappingError(schema.ErrCodeValidation, source, "parse", err)
	}
	code, err := gojq.Compile(query,
		gojq.WithVariables([]string{MappingIndexVar}),
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, mappingError(schema.ErrCodeValidation, source, "compile", err)
	}
	return &Mapping{source: source, code: code}, nil
}

// Source returns the program text.
func (m *Mapping) Source() string { return m.source }

// Apply runs the program over msg. Null outputs are dropped; any other
// non-object output is an EVALUATION_ERROR naming its position.
func (m *Mapping) Apply(ctx context.Context, msg map[string]any, index int64) ([]map[string]any, error) {
	iter := m.code.RunWithContext(ctx, msg, int(index))

	var envelopes []map[string]any
	for pos := 0; ; pos++ {
		v, ok := iter.Next()
		if !ok {
			return envelopes, nil
		}
		switch out := v.(type) {
		case error:
			return nil, mappingError(schema.ErrCodeEvaluation, m.source, "evaluation", out)
		case nil:
		case map[string]any:
			envelopes = append(envelopes, out)
		default:
			return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
				"jq mapping output %d is %T, want an object", pos, v).
				WithDetails(map[string]any{"expression": m.source, "output": pos})
		}
	}
}

func mappingError(code, source, phase string, err error) *schema.ViewError {
	return schema.NewError(code, fmt.Sprintf("jq %s error in %q: %s", phase, source, err)).
		WithCause(err).
		WithDetails(map[string]any{"expression": source})
}

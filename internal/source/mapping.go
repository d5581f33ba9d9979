package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rendis/iterview/internal/expressions"
	"github.com/rendis/iterview/internal/validation"
	"github.com/rendis/iterview/pkg/schema"
)

// Decoder turns one raw message into zero or more events. An optional jq
// mapping reshapes foreign messages into wire envelopes first; every output of
// the program is one envelope and null outputs are dropped.
type Decoder struct {
	envelopes *validation.EnvelopeDecoder
	mapping   *expressions.Mapping
	messages  atomic.Int64
	logger    *slog.Logger
}

// NewDecoder builds a Decoder. mapping may be empty.
func NewDecoder(mapping string, logger *slog.Logger) (*Decoder, error) {
	envelopes, err := validation.NewEnvelopeDecoder(nil)
	if err != nil {
		return nil, fmt.Errorf("envelope decoder: %w", err)
	}
	d := &Decoder{
		envelopes: envelopes,
		logger:    defaultLogger(logger),
	}
	if mapping != "" {
		if d.mapping, err = expressions.CompileMapping(mapping); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Decode validates and decodes raw. With a mapping, $index counts the
// messages this Decoder has seen, starting at 0.
func (d *Decoder) Decode(ctx context.Context, raw []byte) ([]schema.Event, error) {
	if d.mapping == nil {
		ev, err := d.decodeOne(raw)
		if err != nil {
			return nil, err
		}
		return []schema.Event{ev}, nil
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "message is not a JSON object").WithCause(err)
	}
	outputs, err := d.mapping.Apply(ctx, input, d.messages.Add(1)-1)
	if err != nil {
		return nil, err
	}

	events := make([]schema.Event, 0, len(outputs))
	for _, out := range outputs {
		mapped, err := json.Marshal(out)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeDecode, "mapping produced a non-JSON value").WithCause(err)
		}
		ev, err := d.decodeOne(mapped)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (d *Decoder) decodeOne(raw []byte) (schema.Event, error) {
	ev, warnings, err := d.envelopes.Decode(raw)
	if err != nil {
		return schema.Event{}, err
	}
	for _, w := range warnings {
		d.logger.Debug("envelope warning",
			slog.String("path", w.Path),
			slog.String("code", w.Code),
			slog.String("message", w.Message),
			slog.Int64("seq", ev.Sequence),
		)
	}
	return ev, nil
}

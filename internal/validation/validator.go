package validation

import (
	"github.com/rendis/iterview/pkg/schema"
)

// Validator checks raw backend envelopes before they reach a session.
type Validator interface {
	ValidateEnvelope(raw []byte) error
}

// EnvelopeDecoder runs the full ingest check: JSON Schema, decode, then the
// semantic checks of CheckEvent.
type EnvelopeDecoder struct {
	v Validator
}

// NewEnvelopeDecoder wraps v. A nil v builds the default JSON Schema
// validator.
func NewEnvelopeDecoder(v Validator) (*EnvelopeDecoder, error) {
	if v == nil {
		jv, err := NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		v = jv
	}
	return &EnvelopeDecoder{v: v}, nil
}

// Decode validates and decodes raw. The warnings of a valid event are
// returned with it; any rejection makes the whole envelope invalid.
func (d *EnvelopeDecoder) Decode(raw []byte) (schema.Event, schema.Issues, error) {
	if err := d.v.ValidateEnvelope(raw); err != nil {
		return schema.Event{}, nil, err
	}
	ev, err := schema.DecodeEnvelope(raw)
	if err != nil {
		return schema.Event{}, nil, err
	}
	issues := CheckEvent(ev)
	if err := issues.Err(schema.ErrCodeValidation); err != nil {
		return schema.Event{}, nil, err
	}
	return ev, issues.Warnings(), nil
}

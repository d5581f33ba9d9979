package validation

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/iterview/pkg/schema"
)

const envelopeSchemaURL = "https://iterview.dev/schemas/envelope.json"

// envelopeSchemaJSON describes the backend wire message. Unknown message
// types and kinds are allowed; they decode to no-op events.
const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://iterview.dev/schemas/envelope.json",
  "type": "object",
  "required": ["type", "payload"],
  "properties": {
    "type": { "type": "string", "minLength": 1 },
    "correlationId": { "type": "string" },
    "timestamp": {
      "type": "string",
      "anyOf": [{ "maxLength": 0 }, { "format": "date-time" }]
    },
    "payload": { "$ref": "#/$defs/payload" }
  },
  "allOf": [
    {
      "if": { "properties": { "type": { "const": "iteration:progress" } } },
      "then": { "properties": { "payload": { "properties": { "kind": { "const": "progress" } } } } }
    },
    {
      "if": { "properties": { "type": { "const": "thinking:stream" } } },
      "then": { "properties": { "payload": { "properties": { "kind": { "const": "stream" } } } } }
    }
  ],
  "$defs": {
    "payload": {
      "type": "object",
      "required": ["kind", "seq"],
      "properties": {
        "kind": { "type": "string", "minLength": 1 },
        "seq": { "type": "integer", "minimum": 0 },
        "iteration": { "type": "integer", "minimum": 0 },
        "state": { "type": "string" },
        "step": { "type": "string" },
        "stage": { "type": "string" },
        "content": { "type": "string" }
      },
      "allOf": [
        {
          "if": { "properties": { "kind": { "const": "progress" } } },
          "then": { "required": ["state"] }
        }
      ]
    }
  }
}`

// IssueSchema is the issue code of every JSON Schema violation.
const IssueSchema = "SCHEMA_VIOLATION"

// JSONSchemaValidator checks wire envelopes against the Draft 2020-12
// envelope schema. It is safe for concurrent use.
type JSONSchemaValidator struct {
	envelopeSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the envelope schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal envelope schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add envelope schema resource: %w", err)
	}
	compiled, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &JSONSchemaValidator{envelopeSchema: compiled}, nil
}

// ValidateEnvelope checks one raw wire message. Malformed JSON is a
// DECODE_ERROR; schema violations are a VALIDATION_ERROR whose details list
// every leaf violation by instance location.
func (v *JSONSchemaValidator) ValidateEnvelope(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeDecode, "malformed envelope").WithCause(err)
	}
	err = v.envelopeSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	var issues schema.Issues
	collectViolations(verr, &issues)
	if len(issues) == 0 {
		issues.Reject("/", IssueSchema, verr.Error())
	}
	return issues.Err(schema.ErrCodeValidation)
}

func collectViolations(verr *jsonschema.ValidationError, issues *schema.Issues) {
	if len(verr.Causes) == 0 {
		issues.Reject("/"+strings.Join(verr.InstanceLocation, "/"), IssueSchema, verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, issues)
	}
}

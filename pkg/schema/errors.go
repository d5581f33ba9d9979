package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeDecode     = "DECODE_ERROR"
	ErrCodeEvaluation = "EVALUATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeSource     = "SOURCE_ERROR"
	ErrCodeRender     = "RENDER_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodeClosed     = "CLOSED"
)

// ViewError is the structured error type returned at iterview boundaries
// (decoding, ingestion, rendering, configuration).
type ViewError struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Cause         error          `json:"-"`
}

func (e *ViewError) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("[%s] correlation %s: %s", e.Code, e.CorrelationID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ViewError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ViewError.
func NewError(code, message string) *ViewError {
	return &ViewError{Code: code, Message: message}
}

// NewErrorf creates a new ViewError with a formatted message.
func NewErrorf(code, format string, args ...any) *ViewError {
	return &ViewError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCorrelation attaches a correlation ID to the error.
func (e *ViewError) WithCorrelation(id string) *ViewError {
	e.CorrelationID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *ViewError) WithCause(err error) *ViewError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ViewError) WithDetails(details map[string]any) *ViewError {
	e.Details = details
	return e
}

// HasCode reports whether err is a ViewError carrying the given code.
func HasCode(err error, code string) bool {
	var ve *ViewError
	return errors.As(err, &ve) && ve.Code == code
}

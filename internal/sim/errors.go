package sim

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload = errors.New("malformed telemetry payload")
	ErrMissingField     = errors.New("missing field")
	ErrUnknownField     = errors.New("unknown field")
	ErrInvalidValue     = errors.New("invalid value")
)

// ParseError reports which telemetry field could not be decoded.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("telemetry: %v", e.Err)
	}
	return fmt.Sprintf("telemetry field %q: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func fieldError(field string, sentinel error, cause error) *ParseError {
	if cause == nil {
		return &ParseError{Field: field, Err: sentinel}
	}
	return &ParseError{Field: field, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

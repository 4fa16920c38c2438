package registration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionNotFound      = errors.New("registration session not found")
	ErrSessionClosed        = errors.New("registration session closed")
	ErrUnknownField         = errors.New("unknown field")
	ErrReadOnlyField        = errors.New("field cannot be set directly")
	ErrInvalidValue         = errors.New("invalid value")
	ErrUnknownAddressTarget = errors.New("unknown address target")
	ErrValidation           = errors.New("required fields are invalid")
	ErrStepOutOfRange       = errors.New("step out of range")
	ErrStepLocked           = errors.New("step not reached yet")
	ErrNoNextStep           = errors.New("already on the final step")
	ErrNotFinalStep         = errors.New("submission is only possible on the final step")
	ErrAlreadySubmitted     = errors.New("registration already submitted")
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrSubmissionFailed     = errors.New("registration submission failed")
	ErrExtractionInProgress = errors.New("id extraction already in progress")
	ErrExtractionFailed     = errors.New("id extraction failed")
)

// ValidationError lists the fields that blocked a transition, in step order.
type ValidationError struct {
	Fields []FieldID
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(names, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// FieldError reports a value that could not be applied to a field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

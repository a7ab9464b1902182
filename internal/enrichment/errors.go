package enrichment

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ValidationError signals a payload/request that is malformed or violates
// a domain invariant (missing fields, unsupported model, a dependency
// edge that would create a cycle). Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError wraps a message as a *ValidationError with a stack
// trace attached via eris.
func NewValidationError(format string, args ...any) error {
	return eris.Wrap(&ValidationError{Message: fmt.Sprintf(format, args...)}, "validation")
}

// NotFoundError signals a referenced entity (account, lead, column) is
// missing. Never retried.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NewNotFoundError wraps a message as a *NotFoundError.
func NewNotFoundError(format string, args ...any) error {
	return eris.Wrap(&NotFoundError{Message: fmt.Sprintf(format, args...)}, "not found")
}

// FatalTaskError signals unrecoverable pipeline state — the task is
// stored and surfaced as failed, never retried.
type FatalTaskError struct {
	Stage   string
	Message string
}

func (e *FatalTaskError) Error() string {
	if e.Stage == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// NewFatalTaskError wraps a message as a *FatalTaskError.
func NewFatalTaskError(stage, format string, args ...any) error {
	return eris.Wrap(&FatalTaskError{Stage: stage, Message: fmt.Sprintf(format, args...)}, "fatal task error")
}

// IsValidation reports whether err (or one it wraps) is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err (or one it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsFatal reports whether err (or one it wraps) is a FatalTaskError.
func IsFatal(err error) bool {
	var fte *FatalTaskError
	return errors.As(err, &fte)
}

// ToErrorDetails converts an error into the structured shape stored on a
// failed callback or a per-entity error result.
func ToErrorDetails(err error, stage string, processingTimeS float64) *ErrorDetails {
	if err == nil {
		return nil
	}
	errType := "unknown"
	switch {
	case IsValidation(err):
		errType = "validation"
	case IsNotFound(err):
		errType = "not_found"
	case IsFatal(err):
		errType = "fatal"
	default:
		errType = "retryable"
	}
	return &ErrorDetails{
		ErrorType:       errType,
		Message:         err.Error(),
		Stage:           stage,
		ProcessingTimeS: processingTimeS,
	}
}

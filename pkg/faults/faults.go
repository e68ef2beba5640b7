// Package faults defines the error taxonomy shared by every roost component.
//
// The five classes mirror how failures propagate through the workbench:
// state-machine violations, unknown ids, adapter/process failures, exhausted
// workflow steps, and malformed requests. Callers classify with errors.Is
// against the sentinel values, or with the helper predicates below.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates an operation that is not valid for the
	// entity's current status (e.g. prompting a running instance).
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound indicates an unknown entity id.
	ErrNotFound = errors.New("not found")

	// ErrAdapterFailure indicates the external agent process exited
	// abnormally or emitted a malformed stream.
	ErrAdapterFailure = errors.New("adapter failure")

	// ErrStepFailure indicates a workflow step exhausted its retry policy.
	ErrStepFailure = errors.New("step failure")

	// ErrValidation indicates a malformed request shape at entity creation.
	ErrValidation = errors.New("validation error")
)

// InvalidState wraps ErrInvalidState with a formatted message.
func InvalidState(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, a...))
}

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, a...))
}

// AdapterFailure wraps ErrAdapterFailure with a formatted message.
func AdapterFailure(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrAdapterFailure, fmt.Sprintf(format, a...))
}

// StepFailure wraps ErrStepFailure with a formatted message.
func StepFailure(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrStepFailure, fmt.Sprintf(format, a...))
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

// IsInvalidState reports whether err is classified as an invalid-state error.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsNotFound reports whether err is classified as a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAdapterFailure reports whether err is classified as an adapter failure.
func IsAdapterFailure(err error) bool { return errors.Is(err, ErrAdapterFailure) }

// IsStepFailure reports whether err is classified as a step failure.
func IsStepFailure(err error) bool { return errors.Is(err, ErrStepFailure) }

// IsValidation reports whether err is classified as a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

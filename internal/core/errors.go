package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrOutOfRange           = errors.New("amount out of range")
	ErrUnsupportedFrequency = errors.New("unsupported payment frequency")
	ErrCapacityExceeded     = errors.New("loan capacity exceeded")
	// ErrNoApprovedAssessment wraps ErrCapacityExceeded: a borrower without an
	// approved assessment has no capacity at all.
	ErrNoApprovedAssessment = fmt.Errorf("no approved assessment: %w", ErrCapacityExceeded)
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

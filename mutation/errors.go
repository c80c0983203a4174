package mutation

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError with errors.Is.
var ErrValidation = errors.New("mutation: validation failed")

// ValidationError reports a malformed mutation. Receivers drop such
// mutations instead of failing.
type ValidationError struct {
	Type   Type
	ID     string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("mutation: invalid %s", e.Type)
	if e.Type == "" {
		msg = "mutation: invalid mutation"
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (id %s)", e.ID)
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

func invalid(m Mutation, reason string, cause error) *ValidationError {
	return &ValidationError{Type: m.Type, ID: m.ID, Reason: reason, Cause: cause}
}

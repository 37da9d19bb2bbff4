package executor

import (
	"errors"
	"fmt"

	"crucible/internal/prompts"
	"crucible/internal/services"
)

// Kind classifies why a unit attempt ended without a result.
type Kind string

const (
	KindTransientExhausted Kind = "transient_exhausted"
	KindPermanent          Kind = "permanent"
	KindTruncation         Kind = "truncation_unrecoverable"
	KindInterrupted        Kind = "interrupted"
)

// ExecutionError is the typed failure of one unit attempt.
type ExecutionError struct {
	Kind   Kind
	TestID string
	Layer  prompts.Layer
	Err    error
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s layer %d (%s): %s", e.TestID, e.Layer, e.Layer.Name(), e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is maps kinds onto the shared error markers.
func (e *ExecutionError) Is(target error) bool {
	switch e.Kind {
	case KindTransientExhausted:
		return target == services.ErrTransient
	case KindPermanent:
		return target == services.ErrPermanent
	case KindTruncation:
		return target == services.ErrTruncation
	}
	return false
}

// Terminal reports whether the unit must not be retried.
func (e *ExecutionError) Terminal() bool {
	return e.Kind == KindPermanent || e.Kind == KindTruncation
}

// AsExecutionError extracts an ExecutionError from err.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}

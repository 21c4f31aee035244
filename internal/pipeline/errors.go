// internal/pipeline/errors.go
package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrExternalStateMissing means a stage needs a value an earlier stage
	// failed to capture.
	ErrExternalStateMissing = errors.New("external state missing")
	// ErrLoginRequired means no usable session exists and the run cannot ask
	// an operator to sign in.
	ErrLoginRequired = errors.New("login required")
	// ErrOutcomeImmutable is returned when an outcome value is set twice.
	ErrOutcomeImmutable = errors.New("outcome value already set")
	// ErrEmptyOutcome is returned when an outcome value would be set to "".
	ErrEmptyOutcome = errors.New("outcome value is empty")
)

// StageError attributes a failure to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

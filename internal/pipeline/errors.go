package pipeline

import (
	"errors"
	"fmt"
)

// StepError reports which step failed on which response.
type StepError struct {
	Step string
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed for %s: %v", e.Step, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrStepPanic wraps the value a step panicked with.
var ErrStepPanic = errors.New("step panicked")

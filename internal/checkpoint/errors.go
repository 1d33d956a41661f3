package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrBlobNotFound is returned when no blob exists for a component.
	ErrBlobNotFound = errors.New("checkpoint blob not found")

	// ErrSchemaMismatch is returned when a blob does not match the
	// component recovering from it.
	ErrSchemaMismatch = errors.New("checkpoint schema mismatch")

	// ErrFieldNotEncoded is returned by Stash when a declared field was
	// not written by the component.
	ErrFieldNotEncoded = errors.New("declared checkpoint field not encoded")

	// ErrUndeclaredField is returned by Stash when a component writes a
	// field it did not declare.
	ErrUndeclaredField = errors.New("checkpoint field not declared")

	// ErrInvalidName is returned for component names that cannot be used
	// as a file name.
	ErrInvalidName = errors.New("invalid checkpoint component name")
)

// RecoveryError reports a failed recovery. The component it names is left
// in its pre-recovery state.
type RecoveryError struct {
	Component string
	Path      string
	Err       error
}

// Error implements the error interface.
func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recover %s from %s: %v", e.Component, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecoveryError) Unwrap() error {
	return e.Err
}

package filter

import (
	"errors"
	"fmt"
)

var (
	// ErrNestedCrawled is returned when a Crawled filter appears inside
	// the pre-filter of another Crawled filter.
	ErrNestedCrawled = errors.New("crawled filter nested inside another crawled filter")

	// ErrInvalidPattern is returned for a pattern that does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrInvalidMaxGeneration is returned for a negative generation limit.
	ErrInvalidMaxGeneration = errors.New("max generation must be zero or greater")

	// ErrNilStore is returned when a Crawled filter has no store.
	ErrNilStore = errors.New("crawled filter requires a store")

	// ErrStoreMismatch is returned when a checkpoint was written by a
	// different store kind.
	ErrStoreMismatch = errors.New("checkpoint store kind differs")
)

// ConfigError reports an invalid filter configuration. It is raised while
// the filter is built, before any request is evaluated.
type ConfigError struct {
	Filter string
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Filter, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrRunning is returned when an operation needs a spider that is not running.
	ErrRunning = errors.New("spider is running")

	// ErrInFlight is returned by Stash when fetches are still in flight.
	ErrInFlight = errors.New("requests are in flight")

	// ErrCrawlTimeout is returned by Run when the crawl timeout expires
	// with work left in the frontier.
	ErrCrawlTimeout = errors.New("crawl timeout exceeded")

	// ErrInvalidState is returned when the spider cannot move to the requested state.
	ErrInvalidState = errors.New("invalid spider state")

	// ErrInvalidConcurrency indicates a concurrency limit below one.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")

	// ErrInvalidSeed indicates a seed that cannot be crawled.
	ErrInvalidSeed = errors.New("invalid seed")

	// ErrInvalidOption indicates a negative limit, retry count or timeout.
	ErrInvalidOption = errors.New("invalid option")

	// ErrDuplicateCheckpoint indicates two checkpointable components that
	// would write the same blob.
	ErrDuplicateCheckpoint = errors.New("duplicate checkpoint name")
)

// ConfigError reports a spider configuration problem. Run returns it and
// moves the spider to StateFailed before any request is dispatched.
type ConfigError struct {
	// Option names the offending option.
	Option string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("crawler config: %s: %v", e.Option, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

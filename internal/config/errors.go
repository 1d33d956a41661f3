package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoSeed is returned when no seed URL is given and no crawl is resumed.
	ErrNoSeed = errors.New("no seed specified: provide at least one URL or use --resume")

	// ErrInvalidConcurrency is returned when fewer than one worker is configured.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be at least 1")

	// ErrInvalidTimeout is returned when the request timeout is not positive
	// or the crawl timeout is negative.
	ErrInvalidTimeout = errors.New("invalid timeout: request timeout must be positive, crawl timeout non-negative")

	// ErrInvalidMaxGeneration is returned when the depth limit is negative.
	ErrInvalidMaxGeneration = errors.New("invalid depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative (0 means unlimited)")

	// ErrInvalidDedupMode is returned for a dedup mode other than exact or bloom.
	ErrInvalidDedupMode = errors.New("invalid dedup mode: must be exact or bloom")

	// ErrInvalidBloomCapacity is returned when the Bloom filter capacity is zero.
	ErrInvalidBloomCapacity = errors.New("invalid bloom capacity: must be positive")

	// ErrInvalidBloomErrorRate is returned when the false-positive rate is not in (0, 1).
	ErrInvalidBloomErrorRate = errors.New("invalid bloom error rate: must be between 0 and 1 exclusive")

	// ErrInvalidStatusThreshold is returned when the status threshold is not an HTTP status.
	ErrInvalidStatusThreshold = errors.New("invalid status threshold: must be between 100 and 599")

	// ErrInvalidMaxRetries is returned when the retry count is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRateLimit is returned for a negative rate or a rate without a window.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative with a positive window")
)

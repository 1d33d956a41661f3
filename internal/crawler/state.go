package crawler

import (
	"fmt"
	"maps"
)

// State is the lifecycle state of a Spider.
type State int

const (
	// StateIdle is the state after construction.
	StateIdle State = iota

	// StateRunning means Run is dispatching requests.
	StateRunning

	// StatePaused means the crawl stopped early with work left in the frontier.
	StatePaused

	// StateCompleted means the frontier drained or the page limit was reached.
	StateCompleted

	// StateFailed means the configuration was invalid. It is never caused
	// by a failed fetch.
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:      "idle",
	StateRunning:   "running",
	StatePaused:    "paused",
	StateCompleted: "completed",
	StateFailed:    "failed",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState returns the State named name.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, name)
}

// Failure kinds recorded in Stats.Failures besides the transport kinds.
const (
	FailureStatus   = "status"
	FailureConfig   = "config"
	FailurePipeline = "pipeline"
)

// Stats holds crawl counters. Counters survive a checkpoint.
type Stats struct {
	// Enqueued counts requests added to the frontier, seeds included.
	Enqueued int `yaml:"enqueued"`

	// Dispatched counts fetch attempts, retries included.
	Dispatched int `yaml:"dispatched"`

	// Fetched counts successful responses.
	Fetched int `yaml:"fetched"`

	// Failed counts requests dropped after their last attempt failed.
	Failed int `yaml:"failed"`

	// Retried counts requests put back into the frontier after a failure.
	Retried int `yaml:"retried"`

	// Rejected counts requests the filter refused, duplicates included.
	Rejected int `yaml:"rejected"`

	// PipelineErrors counts responses whose pipeline returned an error.
	PipelineErrors int `yaml:"pipeline_errors"`

	// MaxGeneration is the highest generation fetched successfully.
	MaxGeneration int `yaml:"max_generation"`

	// Failures counts dropped requests by failure kind: connect, timeout,
	// tls, other or status.
	Failures map[string]int `yaml:"failures,omitempty"`
}

func (s Stats) clone() Stats {
	s.Failures = maps.Clone(s.Failures)
	return s
}

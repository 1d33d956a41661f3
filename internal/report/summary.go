package report

import (
	"maps"
	"slices"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/crawlkit/internal/crawler"
)

// maxListedFailures caps the failures listed in a report. Counts by kind
// are always complete.
const maxListedFailures = 50

// Failure is a single dropped request listed in a report.
type Failure struct {
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Summary is the outcome of one crawl run.
//
// Design decision: the summary copies the spider counters instead of
// holding the spider, so a report can be written after the spider is
// gone and marshaled without exposing crawler internals.
type Summary struct {
	CrawlID    string    `json:"crawl_id"`
	State      string    `json:"state"`
	Seeds      []string  `json:"seeds"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Enqueued       int `json:"enqueued"`
	Dispatched     int `json:"dispatched"`
	Fetched        int `json:"fetched"`
	Failed         int `json:"failed"`
	Retried        int `json:"retried"`
	Rejected       int `json:"rejected"`
	PipelineErrors int `json:"pipeline_errors"`
	MaxGeneration  int `json:"max_generation"`

	// Pending is the number of requests left in the frontier.
	Pending int `json:"pending"`

	// FailuresByKind counts dropped requests per failure kind.
	FailuresByKind map[string]int `json:"failures_by_kind,omitempty"`

	// Failures lists the first dropped requests, at most maxListedFailures.
	Failures []Failure `json:"failures,omitempty"`

	// Dedup describes the crawled filter store.
	Dedup string `json:"dedup,omitempty"`

	// FalsePositiveRate is set when a Bloom store recorded more URLs than
	// it was sized for. It estimates the share of new URLs skipped as seen.
	FalsePositiveRate float64 `json:"false_positive_rate,omitempty"`

	// CheckpointDir is set when the crawl was stashed for a later resume.
	CheckpointDir string `json:"checkpoint_dir,omitempty"`

	// Error is the error Run returned, if any.
	Error string `json:"error,omitempty"`
}

// NewSummary builds a Summary from the spider's current counters.
func NewSummary(s *crawler.Spider, seeds []string, startedAt, finishedAt time.Time) *Summary {
	stats := s.Stats()
	return &Summary{
		CrawlID:        s.CrawlID(),
		State:          s.State().String(),
		Seeds:          slices.Clone(seeds),
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		Enqueued:       stats.Enqueued,
		Dispatched:     stats.Dispatched,
		Fetched:        stats.Fetched,
		Failed:         stats.Failed,
		Retried:        stats.Retried,
		Rejected:       stats.Rejected,
		PipelineErrors: stats.PipelineErrors,
		MaxGeneration:  stats.MaxGeneration,
		Pending:        s.FrontierLen(),
		FailuresByKind: maps.Clone(stats.Failures),
	}
}

// AddFailure lists a dropped request. Failures past the cap are counted
// by kind only.
func (s *Summary) AddFailure(url, kind, message string) {
	if len(s.Failures) >= maxListedFailures {
		return
	}
	s.Failures = append(s.Failures, Failure{URL: url, Kind: kind, Message: message})
}

// SetError records the error the crawl ended with.
func (s *Summary) SetError(err error) {
	if err != nil {
		s.Error = err.Error()
	}
}

// Duration returns the wall-clock time of the run.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.FinishedAt.Before(s.StartedAt) {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// FailureKinds returns the failure kinds in alphabetical order.
func (s *Summary) FailureKinds() []string {
	return slices.Sorted(maps.Keys(s.FailuresByKind))
}

// HasFailures reports whether any request was dropped.
func (s *Summary) HasFailures() bool {
	return s.Failed > 0 || len(s.FailuresByKind) > 0
}

// Resumable reports whether the crawl stopped with work left that a
// checkpoint can pick up.
func (s *Summary) Resumable() bool {
	return s.State == crawler.StatePaused.String()
}

// StateTitle returns the state for display, e.g. "Completed".
func (s *Summary) StateTitle() string {
	return cases.Title(language.English).String(s.State)
}

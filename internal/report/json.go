package report

import (
	"bytes"
	"encoding/json"
	"io"
)

// JSONReport is the document written when a version is set: the summary
// plus metadata about the run that produced it.
type JSONReport struct {
	// Version is the crawlkit version that generated this report.
	Version string `json:"version"`

	// Summary is the crawl outcome.
	Summary *Summary `json:"summary"`

	// DurationSeconds is the run time, precomputed for consumers that do
	// not parse timestamps.
	DurationSeconds float64 `json:"duration_seconds"`

	// Resumable is true when a checkpoint can continue the crawl.
	Resumable bool `json:"resumable"`
}

// NewJSONReport wraps summary with metadata.
func NewJSONReport(summary *Summary, version string) *JSONReport {
	return &JSONReport{
		Version:         version,
		Summary:         summary,
		DurationSeconds: summary.Duration().Seconds(),
		Resumable:       summary.Resumable(),
	}
}

// JSONWriter renders a summary as JSON. Without a version the bare Summary
// is written; with one it is wrapped in a JSONReport.
//
// URLs are written as is: '&', '<' and '>' are not escaped, so query
// strings stay readable and copyable.
type JSONWriter struct {
	baseWriter

	version string
	prefix  string
	indent  string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent pretty-prints with prefix at the start of each line and
// indent per nesting level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.prefix = prefix
		w.indent = indent
	}
}

// WithPrettyPrint indents with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps the summary in a JSONReport carrying version. An empty
// version leaves the summary bare.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter on output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders summary as a single JSON document followed by a newline.
func (w *JSONWriter) Write(summary *Summary) (int, error) {
	var v any = summary
	if w.version != "" {
		v = NewJSONReport(summary, w.version)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(w.prefix, w.indent)
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}

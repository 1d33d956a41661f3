package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so the output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose enables failure messages in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounters(&sb, summary)
	w.writeFailures(&sb, summary)
	w.writeFooter(&sb, summary)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	rule(sb, '=')
	sb.WriteString(center("CRAWLKIT REPORT") + "\n")
	rule(sb, '=')
	sb.WriteByte('\n')

	fmt.Fprintf(sb, "Crawl ID:       %s\n", s.CrawlID)
	for i, seed := range s.Seeds {
		label := "Seeds:"
		if i > 0 {
			label = ""
		}
		fmt.Fprintf(sb, "%-16s%s\n", label, seed)
	}
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:        %s\n", s.StartedAt.Format(timeLayout))
	}
	fmt.Fprintf(sb, "Duration:       %s\n", s.Duration().Round(time.Millisecond))
	if s.Dedup != "" && w.verbose {
		fmt.Fprintf(sb, "Dedup:          %s\n", s.Dedup)
	}
	if s.FalsePositiveRate > 0 {
		fmt.Fprintf(sb, "Dedup warning:  bloom filter over capacity, ~%.2f%% of new URLs skipped\n", s.FalsePositiveRate*100)
	}

	switch {
	case s.Error != "":
		fmt.Fprintf(sb, "Status:         %s - %s\n", strings.ToUpper(s.State), s.Error)
	case s.Resumable():
		fmt.Fprintf(sb, "Status:         PAUSED (%d pending, resume with --resume)\n", s.Pending)
	default:
		fmt.Fprintf(sb, "Status:         %s\n", s.StateTitle())
	}
	sb.WriteString("\n")
}

// writeCounters writes the crawl counters.
func (w *SimpleWriter) writeCounters(sb *strings.Builder, s *Summary) {
	section(sb, "CRAWL SUMMARY")

	fmt.Fprintf(sb, "  ENQUEUED:   %d\n", s.Enqueued)
	fmt.Fprintf(sb, "  FETCHED:    %d\n", s.Fetched)
	fmt.Fprintf(sb, "  FAILED:     %d\n", s.Failed)
	fmt.Fprintf(sb, "  RETRIED:    %d\n", s.Retried)
	fmt.Fprintf(sb, "  REJECTED:   %d\n", s.Rejected)
	fmt.Fprintf(sb, "  DEPTH:      %d\n", s.MaxGeneration)
	if s.PipelineErrors > 0 || w.showEmpty {
		fmt.Fprintf(sb, "  PIPELINE:   %d errors\n", s.PipelineErrors)
	}
	sb.WriteString("\n")
}

// writeFailures writes failure counts by kind and the listed failures.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, s *Summary) {
	if !s.HasFailures() && !w.showEmpty {
		return
	}

	section(sb, "FAILURES")

	if !s.HasFailures() {
		sb.WriteString("  No failures\n\n")
		return
	}

	for _, kind := range s.FailureKinds() {
		fmt.Fprintf(sb, "  [%s] %d\n", kind, s.FailuresByKind[kind])
	}
	sb.WriteString("\n")

	for _, f := range s.Failures {
		fmt.Fprintf(sb, "  * %s (%s)\n", f.URL, f.Kind)
		if w.verbose && f.Message != "" {
			fmt.Fprintf(sb, "    %s\n", f.Message)
		}
	}
	if len(s.Failures) > 0 {
		sb.WriteString("\n")
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder, s *Summary) {
	rule(sb, '=')
	if s.CheckpointDir != "" {
		fmt.Fprintf(sb, "Checkpoint: %s\n", s.CheckpointDir)
	}
	sb.WriteString("Report generated by crawlkit\n")
	sb.WriteString("https://github.com/nao1215/crawlkit\n")
	rule(sb, '=')
}

// reportWidth is the width of rules and centered titles.
const reportWidth = 70

func rule(sb *strings.Builder, c byte) {
	sb.WriteString(strings.Repeat(string(c), reportWidth))
	sb.WriteByte('\n')
}

func section(sb *strings.Builder, title string) {
	rule(sb, '-')
	sb.WriteString(title + "\n")
	rule(sb, '-')
	sb.WriteByte('\n')
}

func center(title string) string {
	pad := max((reportWidth-len(title))/2, 0)
	return strings.Repeat(" ", pad) + title
}

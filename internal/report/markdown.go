package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeCounters(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("Crawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Crawl ID", "`" + s.CrawlID + "`"},
	}
	for _, seed := range s.Seeds {
		rows = append(rows, []string{"Seed", "`" + seed + "`"})
	}
	if !s.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", s.StartedAt.Format(timeLayout)})
	}
	rows = append(rows,
		[]string{"Duration", s.Duration().String()},
		[]string{"Status", w.getStatusText(s)},
	)
	if s.Dedup != "" {
		rows = append(rows, []string{"Dedup", s.Dedup})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, s)
}

// getStatusText returns the status text based on the crawl state.
func (w *MarkdownWriter) getStatusText(s *Summary) string {
	switch {
	case s.Error != "":
		return "❌ " + s.StateTitle() + " - " + s.Error
	case s.Resumable():
		return "⏸️ Paused (" + strconv.Itoa(s.Pending) + " pending)"
	default:
		return "✅ " + s.StateTitle()
	}
}

// writeAlert writes an alert describing how the crawl ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	switch {
	case s.Error != "":
		md.Cautionf("The crawl ended with an error: %s", s.Error)
	case s.Resumable() && s.CheckpointDir != "":
		md.Importantf("The crawl was paused with %d request(s) pending. Resume it from `%s`.", s.Pending, s.CheckpointDir)
	case s.Resumable():
		md.Importantf("The crawl was paused with %d request(s) pending.", s.Pending)
	case s.FalsePositiveRate > 0:
		md.Warningf("The bloom filter is over capacity: about %.2f%% of new URLs were skipped as already seen.", s.FalsePositiveRate*100)
	case s.Failed > 0:
		md.Warningf("%d request(s) failed after all retries.", s.Failed)
	default:
		md.Tip("Every request was fetched successfully.")
	}
	md.PlainText("")
}

// writeCounters writes the crawl counter table.
func (w *MarkdownWriter) writeCounters(md *markdown.Markdown, s *Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Enqueued", strconv.Itoa(s.Enqueued)},
			{"Dispatched", strconv.Itoa(s.Dispatched)},
			{"Fetched", strconv.Itoa(s.Fetched)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Retried", strconv.Itoa(s.Retried)},
			{"Rejected", strconv.Itoa(s.Rejected)},
			{"Pipeline errors", strconv.Itoa(s.PipelineErrors)},
			{"Max depth", strconv.Itoa(s.MaxGeneration)},
			{"Pending", strconv.Itoa(s.Pending)},
		},
	})
	md.PlainText("")
}

// writeFailures writes failure counts, a pie chart and the failure list.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, s *Summary) {
	md.H2("Failures")
	md.PlainText("")

	if !s.HasFailures() {
		md.PlainText("No failures.")
		md.PlainText("")
		return
	}

	kinds := s.FailureKinds()
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		rows = append(rows, []string{kind, strconv.Itoa(s.FailuresByKind[kind])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, s)

	if len(s.Failures) == 0 {
		return
	}
	listed := make([][]string, len(s.Failures))
	for i, f := range s.Failures {
		msg := f.Message
		if msg == "" {
			msg = "-"
		}
		listed[i] = []string{truncateString(f.URL, 60), f.Kind, truncateString(msg, 60)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Kind", "Message"},
		Rows:   listed,
	})
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of failures by kind.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Failures by Kind"),
		piechart.WithShowData(true),
	)
	for _, kind := range s.FailureKinds() {
		if n := s.FailuresByKind[kind]; n > 0 {
			chart.LabelAndIntValue(kind, uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [crawlkit](https://github.com/nao1215/crawlkit)*")
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

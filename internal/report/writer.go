package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer renders a crawl summary.
type Writer interface {
	// Write renders summary and returns the number of bytes written.
	Write(summary *Summary) (int, error)
}

// Format selects the rendering of a report.
type Format int

const (
	// FormatText is the plain text report for terminals.
	FormatText Format = iota
	// FormatJSON is the JSON report with version metadata.
	FormatJSON
	// FormatMarkdown is the Markdown report with tables and a chart.
	FormatMarkdown
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "markdown"
	default:
		return "text"
	}
}

// Options are the settings shared by every format. Each writer uses the
// ones that apply to it.
type Options struct {
	// Version is embedded in JSON reports.
	Version string
	// Verbose lists failure messages in text reports.
	Verbose bool
}

// New returns the writer for format.
func New(format Format, output io.Writer, opts Options) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithVersion(opts.Version), WithPrettyPrint())
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewSimpleWriter(output, WithVerbose(opts.Verbose))
	}
}

// Create opens path for a report, creating parent directories. Reports
// list crawled URLs, so the file is readable by its owner only.
func Create(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// baseWriter holds the destination every writer renders to.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

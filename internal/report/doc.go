// Package report renders the outcome of a crawl.
//
// A Summary captures one crawl run: the spider counters, failures by kind
// and whether the crawl can be resumed. New returns the Writer for a
// Format:
//   - FormatText: SimpleWriter, plain text for terminals
//   - FormatJSON: JSONWriter, a JSONReport with version metadata
//   - FormatMarkdown: MarkdownWriter, tables and a mermaid chart
//
// Create opens a report file with owner-only permissions.
package report

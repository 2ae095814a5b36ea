// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output for case files and tickets
//
// Every writer renders three documents: a single forensic record, the
// history of a resource or link, and the comparison of two records.
// Presentation data (findings, warnings) is derived with model.NewSummary
// so that the stored records never carry it.
package report

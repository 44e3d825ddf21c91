// Package report renders run results.
//
// This package contains writers for different output formats:
//   - TextWriter: tables for terminal display
//   - JSONWriter: structured JSON for downstream tooling
//   - MarkdownWriter: a shareable run report with charts and alerts
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report

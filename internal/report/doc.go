// Package report renders crawl and archive summaries.
//
// A Summary combines the statistics of the archive with, optionally, the
// result of the crawl that just ran. Three writers render it:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with tables, alerts and a mermaid chart
//
// Writers implement the Writer interface so they can be combined with
// MultiWriter.
package report

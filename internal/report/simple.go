package report

import (
	"fmt"
	"io"
	"strings"
)

// SimpleWriter outputs human-readable text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose lists every captured page.
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
	if summary.Crawl != nil {
		w.writeCrawl(&sb, summary.Crawl)
		w.writeFailures(&sb, summary.Crawl)
		w.writeCaptures(&sb, summary.Crawl)
	}
	w.writeArchive(&sb, summary)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SNAPCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	if summary.Crawl != nil {
		c := summary.Crawl
		fmt.Fprintf(sb, "Seed:      %s\n", c.Seed)
		fmt.Fprintf(sb, "Started:   %s\n", c.StartedAt.Format(timeLayout))
		fmt.Fprintf(sb, "Duration:  %s\n", c.DurationText)
		switch {
		case c.BudgetExhausted:
			fmt.Fprintf(sb, "Status:    PAGE BUDGET REACHED (%d links left in queue)\n", c.Pending)
		case len(c.Failed) > 0:
			fmt.Fprintf(sb, "Status:    Complete with %d failed page(s)\n", len(c.Failed))
		default:
			sb.WriteString("Status:    Complete\n")
		}
	}
	fmt.Fprintf(sb, "Archive:   %s\n", summary.ArchiveDir)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeCrawl(sb *strings.Builder, c *CrawlSummary) {
	w.writeSection(sb, "CRAWL")

	fmt.Fprintf(sb, "  Pages visited:      %d\n", c.Visited)
	fmt.Fprintf(sb, "  Snapshots created:  %d\n", len(c.Captured))
	if len(c.Reused) > 0 || w.showEmpty {
		fmt.Fprintf(sb, "  Reused from archive: %d\n", len(c.Reused))
	}
	fmt.Fprintf(sb, "  Failed:             %d\n", len(c.Failed))
	fmt.Fprintf(sb, "  Skipped (visited):  %d\n", c.SkippedVisited)
	fmt.Fprintf(sb, "  Skipped (depth):    %d\n", c.SkippedDepth)
	fmt.Fprintf(sb, "  Not followed:       %d\n", c.NotFollowed)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, c *CrawlSummary) {
	if len(c.Failed) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, fmt.Sprintf("FAILED PAGES (%d)", len(c.Failed)))
	if len(c.Failed) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, f := range c.Failed {
		fmt.Fprintf(sb, "  - %s\n", f.URL)
		fmt.Fprintf(sb, "    %s\n", f.Error)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCaptures(sb *strings.Builder, c *CrawlSummary) {
	if !w.verbose {
		return
	}
	w.writeSection(sb, fmt.Sprintf("CAPTURED PAGES (%d)", len(c.Captured)))
	for _, capture := range c.Captured {
		fmt.Fprintf(sb, "  - %s\n", capture.URL)
		fmt.Fprintf(sb, "    %s (%d links)\n", capture.SnapshotID, capture.Links)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeArchive(sb *strings.Builder, summary *Summary) {
	w.writeSection(sb, "ARCHIVE")

	a := summary.Archive
	fmt.Fprintf(sb, "  Snapshots:       %d\n", a.Snapshots)
	fmt.Fprintf(sb, "  Domains:         %d\n", len(a.Domains))
	fmt.Fprintf(sb, "  Sites:           %d\n", len(a.Sites))
	fmt.Fprintf(sb, "  Links found:     %d\n", a.LinksFound)
	fmt.Fprintf(sb, "  Links captured:  %d\n", a.LinksCaptured)
	fmt.Fprintf(sb, "  Coverage:        %d%%\n", a.Coverage)

	if len(a.Domains) > 0 {
		sb.WriteString("\n  Domains:\n")
		for _, d := range a.Domains {
			fmt.Fprintf(sb, "    - %s\n", d)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Generated by snapcrawl %s at %s\n", summary.Version, summary.GeneratedAt.Format(timeLayout))
}

package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/snapcrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, for sharing a crawl
// result in an issue or a pull request.
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
	if summary.Crawl != nil {
		w.writeCrawl(md, summary.Crawl)
	}
	w.writeArchive(md, summary)
	w.writeFooter(md, summary)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *Summary) {
	md.H1("snapcrawl Report")
	md.PlainText("")

	rows := [][]string{}
	if c := summary.Crawl; c != nil {
		rows = append(rows,
			[]string{"Seed", "`" + c.Seed + "`"},
			[]string{"Started", c.StartedAt.Format(timeLayout)},
			[]string{"Duration", c.DurationText},
			[]string{"Status", statusText(c)},
		)
	}
	rows = append(rows, []string{"Archive", "`" + summary.ArchiveDir + "`"})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func statusText(c *CrawlSummary) string {
	switch {
	case c.BudgetExhausted:
		return "⚠️ Page budget reached"
	case len(c.Failed) > 0:
		return "⚠️ Complete with failures"
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeCrawl(md *markdown.Markdown, c *CrawlSummary) {
	md.H2("Crawl")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages visited", strconv.Itoa(c.Visited)},
			{"Snapshots created", strconv.Itoa(len(c.Captured))},
			{"Reused from archive", strconv.Itoa(len(c.Reused))},
			{"Failed", strconv.Itoa(len(c.Failed))},
			{"Skipped (already visited)", strconv.Itoa(c.SkippedVisited)},
			{"Skipped (depth limit)", strconv.Itoa(c.SkippedDepth)},
			{"Not followed (scope or pattern)", strconv.Itoa(c.NotFollowed)},
		},
	})
	md.PlainText("")

	switch {
	case c.BudgetExhausted:
		md.Warningf(
			"The page budget stopped the crawl with %d link(s) still queued. Raise --max-pages to archive more.",
			c.Pending,
		)
	case len(c.Failed) > 0:
		md.Warningf("%d page(s) could not be fetched.", len(c.Failed))
	default:
		md.Tip("Every reachable page within the limits was captured.")
	}
	md.PlainText("")

	if len(c.Failed) > 0 {
		md.H3("Failed Pages")
		md.PlainText("")
		rows := make([][]string, len(c.Failed))
		for i, f := range c.Failed {
			rows[i] = []string{model.Ellipsis(f.URL, 70), model.Ellipsis(f.Error, 80)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Error"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(c.Captured) > 0 {
		rows := make([][]string, len(c.Captured))
		for i, capture := range c.Captured {
			rows[i] = []string{
				model.Ellipsis(capture.URL, 70),
				"`" + capture.SnapshotID + "`",
				strconv.Itoa(capture.Links),
			}
		}
		md.Details("Captured pages ("+strconv.Itoa(len(c.Captured))+")", capturedTable(rows))
		md.PlainText("")
	}
}

// capturedTable renders rows as a Markdown table string for use inside a
// details block.
func capturedTable(rows [][]string) string {
	inner := markdown.NewMarkdown(io.Discard)
	inner.Table(markdown.TableSet{
		Header: []string{"URL", "Snapshot", "Links"},
		Rows:   rows,
	})
	return inner.String()
}

func (w *MarkdownWriter) writeArchive(md *markdown.Markdown, summary *Summary) {
	a := summary.Archive

	md.H2("Archive")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Snapshots", strconv.Itoa(a.Snapshots)},
			{"Domains", strconv.Itoa(len(a.Domains))},
			{"Sites", strconv.Itoa(len(a.Sites))},
			{"Links found", strconv.Itoa(a.LinksFound)},
			{"Links captured", strconv.Itoa(a.LinksCaptured)},
			{"Coverage", strconv.Itoa(a.Coverage) + "%"},
		},
	})
	md.PlainText("")

	if a.LinksFound > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Link Coverage"),
			piechart.WithShowData(true),
		)
		if a.LinksCaptured > 0 {
			chart.LabelAndIntValue("Captured", uint64(a.LinksCaptured)) //nolint:gosec // counts are non-negative
		}
		if n := summary.uncaptured(); n > 0 {
			chart.LabelAndIntValue("Not captured", uint64(n)) //nolint:gosec // counts are non-negative
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	if a.Snapshots == 0 {
		md.Note("The archive is empty. Run `snapcrawl crawl <url>` to capture a site.")
		md.PlainText("")
		return
	}

	if len(a.Domains) > 0 {
		md.H3("Domains")
		md.PlainText("")
		md.BulletList(a.Domains...)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, summary *Summary) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [snapcrawl %s](https://github.com/nao1215/snapcrawl) at %s*",
		summary.Version, summary.GeneratedAt.Format(timeLayout))
}

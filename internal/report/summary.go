package report

import (
	"time"

	"github.com/nao1215/snapcrawl/internal/crawler"
	"github.com/nao1215/snapcrawl/internal/model"
)

// Summary is the data every report format renders: the state of the
// archive and, when a crawl just ran, what that crawl did.
type Summary struct {
	// Version is the snapcrawl version that produced the report.
	Version string `json:"version"`

	// GeneratedAt is when the report was built.
	GeneratedAt time.Time `json:"generated_at"`

	// ArchiveDir is the archive the statistics were read from.
	ArchiveDir string `json:"archive_dir"`

	// Crawl describes the run. It is nil for archive-only reports.
	Crawl *CrawlSummary `json:"crawl,omitempty"`

	// Archive holds the statistics of the whole archive.
	Archive model.ArchiveStats `json:"archive"`
}

// CrawlSummary is the reportable part of a crawler.Result.
type CrawlSummary struct {
	Seed       string        `json:"seed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"-"`

	// DurationText is Duration in time.Duration notation.
	DurationText string `json:"duration"`

	Visited        int               `json:"visited"`
	Captured       []crawler.Capture `json:"captured"`
	Reused         []string          `json:"reused,omitempty"`
	Failed         []FailedURL       `json:"failed,omitempty"`
	SkippedVisited int               `json:"skipped_visited"`
	SkippedDepth   int               `json:"skipped_depth"`
	NotFollowed    int               `json:"not_followed"`
	Pending        int               `json:"pending"`

	// BudgetExhausted is set when the page budget stopped the run with
	// links still queued.
	BudgetExhausted bool `json:"budget_exhausted"`
}

// FailedURL is a page that could not be fetched.
type FailedURL struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// NewSummary builds a Summary. result may be nil.
func NewSummary(version, archiveDir string, result *crawler.Result, stats model.ArchiveStats, now time.Time) *Summary {
	s := &Summary{
		Version:     version,
		GeneratedAt: now,
		ArchiveDir:  archiveDir,
		Archive:     stats,
	}
	if result == nil {
		return s
	}

	duration := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	crawl := &CrawlSummary{
		Seed:            result.Seed,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
		Duration:        duration,
		DurationText:    duration.String(),
		Visited:         len(result.Visited),
		Captured:        result.Captured,
		Reused:          result.Reused,
		SkippedVisited:  result.SkippedVisited,
		SkippedDepth:    result.SkippedDepth,
		NotFollowed:     result.NotFollowed,
		Pending:         result.Pending,
		BudgetExhausted: result.BudgetExhausted(),
	}
	if crawl.Captured == nil {
		crawl.Captured = []crawler.Capture{}
	}
	for _, f := range result.Failed {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		crawl.Failed = append(crawl.Failed, FailedURL{URL: f.URL, Error: msg})
	}
	s.Crawl = crawl
	return s
}

// uncaptured is the number of discovered links without a snapshot.
func (s *Summary) uncaptured() int {
	if n := s.Archive.LinksFound - s.Archive.LinksCaptured; n > 0 {
		return n
	}
	return 0
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/snapcrawl/internal/extract"
	"github.com/nao1215/snapcrawl/internal/model"
)

// ErrInvalidSeed is returned by Run when the seed is not an absolute http(s) URL.
var ErrInvalidSeed = errors.New("seed must be an absolute http or https URL")

// Page is a fetched document.
type Page struct {
	// URL is the location the content was served from after redirects.
	// Relative links are resolved against it.
	URL string

	// ContentType is the Content-Type response header.
	ContentType string

	// Body is the raw response body.
	Body []byte
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (*Page, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	return f(ctx, rawURL)
}

// Archive is the subset of the snapshot store the crawler writes to.
type Archive interface {
	Save(ctx context.Context, rawURL string, content []byte, links []string, title string) (string, error)
	Latest(rawURL string) (*model.Snapshot, bool)
	RecomputeAllCrossReferences(ctx context.Context) error
}

// Indexer regenerates the browsable index after a run.
type Indexer interface {
	GenerateIndex(ctx context.Context) error
}

// IndexerFunc adapts a function to the Indexer interface.
type IndexerFunc func(ctx context.Context) error

// GenerateIndex calls f.
func (f IndexerFunc) GenerateIndex(ctx context.Context) error {
	return f(ctx)
}

// Crawler walks a site breadth-first and archives every page it reaches.
// A Crawler is configured once at construction. Run may be called again
// for another seed; each run starts with an empty frontier and visited set.
type Crawler struct {
	fetcher   Fetcher
	archive   Archive
	indexer   Indexer
	extractor *extract.Extractor
	logger    *slog.Logger

	// maxDepth is the deepest link level fetched. 0 fetches only the seed.
	maxDepth int

	// maxPages stops the run once this many pages were captured.
	maxPages int

	// delay is waited before every fetch.
	delay time.Duration

	// pause implements the delay. Replaced in tests.
	pause func(ctx context.Context, d time.Duration) error

	now func() time.Time

	filter filter

	// skipArchived reuses existing snapshots instead of fetching again.
	skipArchived bool
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMaxDepth sets the maximum link depth.
// 0 = only the seed, 1 = the seed plus the pages it links to, etc.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) {
		c.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages captured in one run.
func WithMaxPages(maxPages int) Option {
	return func(c *Crawler) {
		c.maxPages = maxPages
	}
}

// WithDelay sets the pause before every fetch.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.delay = d
	}
}

// WithPause replaces the function used to wait out the delay.
func WithPause(pause func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Crawler) {
		c.pause = pause
	}
}

// WithScope limits which discovered links are followed.
func WithScope(scope Scope) Option {
	return func(c *Crawler) {
		c.filter.scope = scope
	}
}

// WithIgnorePatterns sets URL path patterns that are never followed.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.filter.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts crawling to URL paths matching at least one pattern.
// An empty slice allows every path that is not ignored.
func WithFollowPatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.filter.followPatterns = patterns
	}
}

// WithSkipArchived makes the crawler reuse the latest snapshot of a URL
// that is already archived: the URL is not fetched and its recorded links
// are followed instead.
func WithSkipArchived(skip bool) Option {
	return func(c *Crawler) {
		c.skipArchived = skip
	}
}

// WithIndexer sets the index generator invoked once at the end of each run.
func WithIndexer(indexer Indexer) Option {
	return func(c *Crawler) {
		c.indexer = indexer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithClock sets the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		c.now = now
	}
}

// New creates a Crawler that fetches with fetcher and saves into archive.
func New(fetcher Fetcher, archive Archive, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:   fetcher,
		archive:   archive,
		extractor: extract.New(),
		logger:    slog.Default(),
		maxDepth:  3,
		maxPages:  100,
		delay:     1 * time.Second,
		pause:     sleep,
		now:       time.Now,
		filter:    filter{scope: ScopeAll},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Capture is a page saved during a run.
type Capture struct {
	URL        string `json:"url"`
	SnapshotID string `json:"snapshot_id"`
	Links      int    `json:"links"`
}

// Failure is a URL whose fetch failed.
type Failure struct {
	URL string
	Err error
}

// Result describes a finished run.
type Result struct {
	Seed       string
	StartedAt  time.Time
	FinishedAt time.Time

	// Visited lists every URL marked visited, in visit order.
	Visited []string

	// Captured lists the pages saved, in capture order.
	Captured []Capture

	// Reused lists archived URLs whose stored links were followed
	// without a fetch.
	Reused []string

	// Failed lists the URLs whose fetch failed.
	Failed []Failure

	// SkippedVisited counts frontier entries dropped because the URL was
	// already visited.
	SkippedVisited int

	// SkippedDepth counts frontier entries dropped for exceeding the depth limit.
	SkippedDepth int

	// NotFollowed counts discovered links left out of the frontier by the
	// scope or the path patterns.
	NotFollowed int

	// Pending is the number of frontier entries left when the run stopped.
	Pending int
}

// BudgetExhausted reports whether the run stopped on the page budget
// with work still queued.
func (r *Result) BudgetExhausted() bool {
	return r.Pending > 0
}

// queueItem represents an item in the frontier.
type queueItem struct {
	url   string
	depth int
}

// Run crawls from seed until the frontier is empty or the page budget is
// spent, then rebuilds cross-references and regenerates the index.
//
// A fetch failure is logged and the run moves on. A failure to save a
// snapshot aborts the run; the returned Result then covers the work done
// so far.
func (c *Crawler) Run(ctx context.Context, seed string) (*Result, error) {
	start, err := url.Parse(seed)
	if err != nil || (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, seed)
	}
	seed = model.CanonicalURL(start.String())

	result := &Result{
		Seed:      seed,
		StartedAt: c.now(),
		Visited:   make([]string, 0),
		Captured:  make([]Capture, 0),
		Reused:    make([]string, 0),
		Failed:    make([]Failure, 0),
	}

	visited := make(map[string]bool)
	frontier := []queueItem{{url: seed, depth: 0}}

	for len(frontier) > 0 && len(result.Captured) < c.maxPages {
		if err := ctx.Err(); err != nil {
			result.Pending = len(frontier)
			result.FinishedAt = c.now()
			return result, err
		}

		item := frontier[0]
		frontier = frontier[1:]

		if visited[item.url] {
			result.SkippedVisited++
			continue
		}
		if item.depth > c.maxDepth {
			result.SkippedDepth++
			c.logger.Debug("skipped", "url", item.url, "depth", item.depth, "reason", "depth limit")
			continue
		}
		visited[item.url] = true
		result.Visited = append(result.Visited, item.url)

		if c.skipArchived {
			if snap, ok := c.archive.Latest(item.url); ok {
				c.logger.Debug("skipped", "url", item.url, "reason", "already archived", "snapshot", snap.ID)
				result.Reused = append(result.Reused, item.url)
				frontier = c.enqueue(frontier, result, visited, seed, snap.LinksFound, item.depth+1)
				continue
			}
		}

		if err := c.pause(ctx, c.delay); err != nil {
			result.Pending = len(frontier)
			result.FinishedAt = c.now()
			return result, err
		}

		c.logger.Debug("capturing", "url", item.url, "depth", item.depth)
		page, err := c.fetcher.Fetch(ctx, item.url)
		if err != nil {
			c.logger.Warn("fetch failed", "url", item.url, "error", err)
			result.Failed = append(result.Failed, Failure{URL: item.url, Err: err})
			continue
		}

		base, err := url.Parse(page.URL)
		if err != nil || page.URL == "" {
			base, _ = url.Parse(item.url) //nolint:errcheck // item.url was parsed when enqueued
		}
		extracted := c.extractor.Extract(page.Body, page.ContentType, base)

		id, err := c.archive.Save(ctx, item.url, page.Body, extracted.Links, extracted.Title)
		if err != nil {
			result.Pending = len(frontier)
			result.FinishedAt = c.now()
			return result, fmt.Errorf("failed to save snapshot of %s: %w", item.url, err)
		}
		c.logger.Info("snapshot saved", "url", item.url, "snapshot", id)
		result.Captured = append(result.Captured, Capture{URL: item.url, SnapshotID: id, Links: len(extracted.Links)})

		frontier = c.enqueue(frontier, result, visited, seed, extracted.Links, item.depth+1)
	}
	result.Pending = len(frontier)

	if err := c.archive.RecomputeAllCrossReferences(ctx); err != nil {
		result.FinishedAt = c.now()
		return result, fmt.Errorf("failed to rebuild cross-references: %w", err)
	}
	if c.indexer != nil {
		if err := c.indexer.GenerateIndex(ctx); err != nil {
			result.FinishedAt = c.now()
			return result, fmt.Errorf("failed to generate index: %w", err)
		}
	}

	result.FinishedAt = c.now()
	return result, nil
}

// enqueue appends every unvisited, followable link at depth.
// Links already waiting in the frontier are appended again; the visited
// check at dequeue drops the repeats.
func (c *Crawler) enqueue(frontier []queueItem, result *Result, visited map[string]bool, seed string, links []string, depth int) []queueItem {
	for _, link := range links {
		target := model.CanonicalURL(link)
		if visited[target] {
			continue
		}
		if !c.filter.allows(seed, target) {
			result.NotFollowed++
			continue
		}
		frontier = append(frontier, queueItem{url: target, depth: depth})
	}
	return frontier
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

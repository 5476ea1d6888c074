package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/snapcrawl/internal/config"
	"github.com/nao1215/snapcrawl/internal/crawler"
	"github.com/nao1215/snapcrawl/internal/render"
	"github.com/nao1215/snapcrawl/internal/report"
	"github.com/nao1215/snapcrawl/internal/store"
)

// robotsCacheSize is the number of hosts whose robots.txt is remembered.
const robotsCacheSize = 128

// retryWait is the base wait between retries of a failed request.
const retryWait = 500 * time.Millisecond

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a website into the archive",
		Long: `Crawl captures a website breadth-first starting at the given URL.

Every page reached within the depth limit is stored as a timestamped snapshot
together with the links found on it. When the crawl finishes, links between
captured pages are resolved and the archive index and the wrapper pages are
rendered, so the archive can be browsed offline.

Examples:
  # Capture a site with the default limits (depth 3, 100 pages)
  snapcrawl crawl https://example.com/

  # Capture only the start page
  snapcrawl crawl -d 0 https://example.com/

  # Stay on the seed host and honor robots.txt
  snapcrawl crawl --scope host --robots https://example.com/docs/

  # Reuse pages already in the archive instead of fetching them again
  snapcrawl crawl --skip-archived https://example.com/

  # Write a Markdown report of the run
  snapcrawl crawl -m -o report.md https://example.com/

Configuration file (.snapcrawl) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 5
      ignorePatterns:
        - "/admin/*"`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Crawl limits
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the seed (0 captures only the seed)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages captured in this run")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Pause before each request")
	cmd.Flags().StringP("scope", "s", config.DefaultScope,
		"Which links to follow: all, host (seed host only) or site (seed registrable domain)")
	cmd.Flags().Bool("skip-archived", false,
		"Reuse archived snapshots instead of fetching those pages again")

	// HTTP behavior
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().Int("retries", config.DefaultRetries,
		"Retries after a network error, 429 or 5xx response")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header sent with requests")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of bytes read per page")
	cmd.Flags().Bool("robots", false,
		"Honor robots.txt")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .snapcrawl in current or home directory)")

	addReportFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg.Verbose)

	ctx, cancel := signalContext(logger)
	defer cancel()

	result, st, err := runCrawl(ctx, cfg, cmd.Flags().Changed("depth"), logger)
	if st != nil {
		defer st.Close()
	}
	if err != nil {
		return err
	}

	summary := report.NewSummary(getVersion(), cfg.ArchiveDir, result, st.Stats(), time.Now())
	return outputReport(cmd, cfg, summary)
}

// buildConfig creates a Config from defaults, the environment, the
// configuration file and the command flags, in increasing precedence.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := baseConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("depth") {
		if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-pages") {
		if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("delay") {
		if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("robots") {
		if cfg.RespectRobots, err = flags.GetBool("robots"); err != nil {
			return nil, err
		}
	}
	if cfg.Retries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.Scope, err = flags.GetString("scope"); err != nil {
		return nil, err
	}
	if cfg.SkipArchived, err = flags.GetBool("skip-archived"); err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := readReportFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.SeedURL = args[0]
	}
	return cfg, nil
}

// runCrawl opens the archive and crawls cfg.SeedURL into it. The returned
// store is non-nil whenever it was opened, even on error.
func runCrawl(ctx context.Context, cfg *config.Config, depthFromFlag bool, logger *slog.Logger) (*crawler.Result, *store.Store, error) {
	st, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return nil, st, err
	}

	scope, err := crawler.ParseScope(cfg.Scope)
	if err != nil {
		return nil, st, fmt.Errorf("configuration error: %w", err)
	}
	site := cfg.SeedSite()
	maxDepth := cfg.EffectiveMaxDepth(depthFromFlag)

	renderer := render.New(cfg.ArchiveDir, render.WithLogger(logger))
	indexer := crawler.IndexerFunc(func(ctx context.Context) error {
		return renderer.Render(ctx, st.All(), st.Stats())
	})

	c := crawler.New(fetcher, st,
		crawler.WithMaxDepth(maxDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithDelay(cfg.CrawlDelay),
		crawler.WithScope(scope),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithSkipArchived(cfg.SkipArchived),
		crawler.WithIndexer(indexer),
		crawler.WithLogger(logger),
	)

	logger.Info("starting crawl",
		"seed", cfg.SeedURL,
		"maxDepth", maxDepth,
		"maxPages", cfg.MaxPages,
		"archive", cfg.ArchiveDir,
		"scope", cfg.Scope,
	)

	result, err := c.Run(ctx, cfg.SeedURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return result, st, fmt.Errorf("crawl interrupted: %w", err)
		}
		return result, st, err
	}
	return result, st, nil
}

// newFetcher builds the HTTP fetcher described by cfg.
func newFetcher(cfg *config.Config, logger *slog.Logger) (*crawler.HTTPFetcher, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	opts := []crawler.FetcherOption{
		crawler.WithHTTPClient(client),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithRetries(cfg.Retries, retryWait),
		crawler.WithHeaders(func(rawURL string) http.Header {
			return cfg.Site(rawURL).HTTPHeader()
		}),
		crawler.WithFetcherLogger(logger),
	}

	if cfg.RespectRobots {
		robots, err := crawler.NewRobotsPolicy(client, robotsCacheSize, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, crawler.WithRobots(robots))
	}

	return crawler.NewHTTPFetcher(opts...), nil
}

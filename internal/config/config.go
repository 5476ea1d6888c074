package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "snapcrawl"

	// DefaultMaxDepth follows links three levels away from the seed.
	DefaultMaxDepth = 3

	// DefaultMaxPages is the maximum number of pages captured per run.
	// This prevents runaway crawling on large or infinitely-generating sites.
	DefaultMaxPages = 100

	// DefaultCrawlDelay is waited before every request.
	DefaultCrawlDelay = 1 * time.Second

	// DefaultTimeout bounds each HTTP attempt.
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the number of extra attempts after a transient failure.
	DefaultRetries = 2

	// DefaultUserAgent identifies snapcrawl in HTTP requests and robots.txt matching.
	DefaultUserAgent = "snapcrawl/1.0 (+https://github.com/nao1215/snapcrawl)"

	// DefaultMaxBodySize limits the response body size read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultIndexFormat stores the index as index.json next to the snapshots.
	DefaultIndexFormat = "json"

	// DefaultScope follows every link.
	DefaultScope = "all"
)

// Config holds all configuration options for a crawl.
// It is populated from defaults, the environment and CLI flags, in that
// order, and validated once before any fetch.
type Config struct {
	// SeedURL is the absolute http(s) URL the crawl starts from.
	SeedURL string

	// MaxDepth is the maximum link depth. 0 captures only the seed.
	MaxDepth int

	// MaxPages is the maximum number of pages captured in one run.
	MaxPages int

	// CrawlDelay is the pause before each HTTP request.
	CrawlDelay time.Duration

	// Timeout is the per-attempt HTTP timeout.
	Timeout time.Duration

	// Retries is the number of retries after a network error, 429 or 5xx.
	Retries int

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Longer responses are truncated.
	MaxBodySize int64

	// ArchiveDir is where snapshots, the index and the rendered pages live.
	// Defaults to the XDG data directory (~/.local/share/snapcrawl/archive on Linux).
	ArchiveDir string

	// IndexFormat selects the index backend: "json" or "sqlite".
	IndexFormat string

	// Scope limits which hosts the crawl follows: "all", "host" or "site".
	Scope string

	// RespectRobots makes the fetcher honor robots.txt.
	RespectRobots bool

	// SkipArchived reuses the latest snapshot of an already archived URL
	// instead of fetching it again.
	SkipArchived bool

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// JSONReport selects the JSON run report. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown run report. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .snapcrawl in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:    DefaultMaxDepth,
		MaxPages:    DefaultMaxPages,
		CrawlDelay:  DefaultCrawlDelay,
		Timeout:     DefaultTimeout,
		Retries:     DefaultRetries,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		ArchiveDir:  DefaultArchiveDir(),
		IndexFormat: DefaultIndexFormat,
		Scope:       DefaultScope,
		SiteConfigs: &File{Sites: make(map[string]SiteConfig)},
	}
}

// XDGDataDir returns the XDG data directory for snapcrawl.
// On Linux: ~/.local/share/snapcrawl
// On macOS: ~/Library/Application Support/snapcrawl
// On Windows: %LOCALAPPDATA%\snapcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for snapcrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultArchiveDir returns the archive directory used when none is configured.
func DefaultArchiveDir() string {
	return filepath.Join(XDGDataDir(), "archive")
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors.
func (c *Config) Validate() error {
	if c.SeedURL == "" {
		return ErrNoSeed
	}
	u, err := url.Parse(c.SeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidSeed
	}

	if c.MaxDepth < 0 || c.SeedSite().Depth < 0 {
		return ErrInvalidDepth
	}

	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}

	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Retries < 0 {
		return ErrInvalidRetries
	}

	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}

	if c.ArchiveDir == "" {
		return ErrNoArchiveDir
	}

	if err := ValidateIndexFormat(c.IndexFormat); err != nil {
		return err
	}

	switch c.Scope {
	case "all", "host", "site":
	default:
		return ErrInvalidScope
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// ValidateIndexFormat reports whether format names a supported index backend.
func ValidateIndexFormat(format string) error {
	switch format {
	case "json", "sqlite":
		return nil
	}
	return ErrInvalidIndexFormat
}

// Site returns the merged site configuration for the host of rawURL.
func (c *Config) Site(rawURL string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return c.SiteConfigs.Defaults
	}
	return c.SiteConfigs.GetSiteConfig(u.Host)
}

// SeedSite returns the merged site configuration for the seed's host.
func (c *Config) SeedSite() SiteConfig {
	return c.Site(c.SeedURL)
}

// EffectiveMaxDepth returns the depth limit for the seed's site: a depth
// set in the config file overrides MaxDepth unless depthFromFlag is true.
func (c *Config) EffectiveMaxDepth(depthFromFlag bool) int {
	if depthFromFlag {
		return c.MaxDepth
	}
	if d := c.SeedSite().Depth; d != 0 {
		return d
	}
	return c.MaxDepth
}

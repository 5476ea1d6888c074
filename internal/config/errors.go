package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and are matched with errors.Is.
var (
	// ErrNoSeed is returned when no seed URL is given.
	ErrNoSeed = errors.New("no seed URL specified")

	// ErrInvalidSeed is returned when the seed is not an absolute http or https URL.
	ErrInvalidSeed = errors.New("invalid seed URL: must be an absolute http or https URL")

	// ErrInvalidDepth is returned when the maximum depth is negative.
	// Depth 0 is valid and captures only the seed.
	ErrInvalidDepth = errors.New("invalid max depth: must be zero or greater")

	// ErrInvalidMaxPages is returned when the page budget is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrNoArchiveDir is returned when the archive directory is empty.
	ErrNoArchiveDir = errors.New("no archive directory specified")

	// ErrInvalidIndexFormat is returned for an index format other than json or sqlite.
	ErrInvalidIndexFormat = errors.New("invalid index format: must be json or sqlite")

	// ErrInvalidScope is returned for a crawl scope other than all, host or site.
	ErrInvalidScope = errors.New("invalid scope: must be all, host or site")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)

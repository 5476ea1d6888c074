package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrDisallowedByRobots is returned when robots.txt forbids the URL.
	ErrDisallowedByRobots = errors.New("disallowed by robots.txt")

	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrNotHTML is returned when the response is not an HTML document.
	ErrNotHTML = errors.New("response is not HTML")
)

// DefaultUserAgent identifies the crawler in requests and robots.txt matching.
const DefaultUserAgent = "snapcrawl/1.0 (+https://github.com/nao1215/snapcrawl)"

// HeaderFunc returns extra request headers for a URL, such as a per-site
// cookie. A nil result adds nothing.
type HeaderFunc func(rawURL string) http.Header

// HTTPFetcher fetches pages over HTTP.
type HTTPFetcher struct {
	client *http.Client

	// userAgent is the User-Agent header to use.
	userAgent string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// retries is the number of extra attempts after a transient failure.
	retries int

	// retryWait is multiplied by the attempt number between retries.
	retryWait time.Duration

	headers HeaderFunc
	robots  *RobotsPolicy
	logger  *slog.Logger
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets the HTTP client. Its Timeout bounds each attempt.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize sets the maximum response body size. Longer bodies are truncated.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxBodySize = size
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int, wait time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.retries = n
		f.retryWait = wait
	}
}

// WithHeaders sets the per-URL header source.
func WithHeaders(fn HeaderFunc) FetcherOption {
	return func(f *HTTPFetcher) {
		f.headers = fn
	}
}

// WithRobots makes the fetcher consult robots.txt before every request.
func WithRobots(policy *RobotsPolicy) FetcherOption {
	return func(f *HTTPFetcher) {
		f.robots = policy
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      &http.Client{Timeout: 10 * time.Second},
		userAgent:   DefaultUserAgent,
		maxBodySize: 5 * 1024 * 1024, // 5MB
		retries:     2,
		retryWait:   500 * time.Millisecond,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch retrieves rawURL, retrying network errors, 429 and 5xx responses.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	if f.robots != nil && !f.robots.Allowed(ctx, u, f.userAgent) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedByRobots, rawURL)
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, f.retryWait*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}

		page, retry, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

// fetchOnce performs one request. retry reports whether the failure is transient.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (page *Page, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if f.headers != nil {
		for key, values := range f.headers(rawURL) {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, transient, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, rawURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return nil, false, fmt.Errorf("%w: %s is %q", ErrNotHTML, rawURL, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		ContentType: contentType,
		Body:        body,
	}, false, nil
}

// isHTML accepts HTML and XHTML, and responses without a Content-Type.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/temoto/robotstxt"
)

// maxRobotsSize caps how much of a robots.txt file is read.
const maxRobotsSize = 512 * 1024

// RobotsPolicy answers robots.txt queries, keeping the parsed rules of
// recently seen hosts in an LRU cache.
type RobotsPolicy struct {
	client *http.Client
	cache  *lru.Cache[string, *robotstxt.RobotsData]
	logger *slog.Logger
}

// NewRobotsPolicy creates a RobotsPolicy that remembers up to size hosts.
func NewRobotsPolicy(client *http.Client, size int, logger *slog.Logger) (*RobotsPolicy, error) {
	cache, err := lru.New[string, *robotstxt.RobotsData](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsPolicy{client: client, cache: cache, logger: logger}, nil
}

// Allowed reports whether agent may fetch u.
// A robots.txt that cannot be retrieved allows everything; a 5xx answer
// disallows everything for that host.
func (p *RobotsPolicy) Allowed(ctx context.Context, u *url.URL, agent string) bool {
	key := u.Scheme + "://" + u.Host
	robots, ok := p.cache.Get(key)
	if !ok {
		robots = p.load(ctx, key)
		p.cache.Add(key, robots)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return robots.TestAgent(path, agent)
}

func (p *RobotsPolicy) load(ctx context.Context, origin string) *robotstxt.RobotsData {
	allowAll, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil) //nolint:errcheck // never fails for 4xx

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return allowAll
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("robots.txt unavailable", "origin", origin, "error", err)
		return allowAll
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return allowAll
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		p.logger.Debug("robots.txt unparsable", "origin", origin, "error", err)
		return allowAll
	}
	return robots
}

package crawler

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope decides which hosts a crawl may leave the seed for.
type Scope string

const (
	// ScopeAll follows every http(s) link.
	ScopeAll Scope = "all"

	// ScopeHost follows links on the seed's host only.
	ScopeHost Scope = "host"

	// ScopeSite follows links on the seed's registrable domain,
	// so www.example.com and blog.example.com belong together.
	ScopeSite Scope = "site"
)

// ParseScope converts a scope name into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(s)) {
	case ScopeAll, "":
		return ScopeAll, nil
	case ScopeHost:
		return ScopeHost, nil
	case ScopeSite:
		return ScopeSite, nil
	}
	return "", fmt.Errorf("unknown crawl scope %q (want all, host or site)", s)
}

type filter struct {
	scope Scope

	// ignorePatterns are URL path patterns to skip during crawling.
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	// If set, only URLs matching these patterns are crawled.
	followPatterns []string
}

// allows reports whether target may be added to the frontier of a crawl
// started at seed.
func (f filter) allows(seed, target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return f.inScope(seed, u) && f.shouldCrawl(u)
}

func (f filter) inScope(seed string, target *url.URL) bool {
	if f.scope == ScopeAll || f.scope == "" {
		return true
	}

	s, err := url.Parse(seed)
	if err != nil {
		return false
	}

	switch f.scope {
	case ScopeHost:
		return strings.EqualFold(s.Host, target.Host)
	case ScopeSite:
		return strings.EqualFold(registrableDomain(s.Hostname()), registrableDomain(target.Hostname()))
	}
	return false
}

func registrableDomain(host string) string {
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
//
// Logic:
//  1. If the path matches any ignore pattern, skip it
//  2. If follow patterns are set and the path matches none, skip it
//  3. Otherwise, crawl it
func (f filter) shouldCrawl(u *url.URL) bool {
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(f.followPatterns) == 0 {
		return true
	}
	for _, pattern := range f.followPatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//
// Examples:
//   - "/admin/*" matches "/admin", "/admin/users" and "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, "*?[") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Patterns without a slash are matched against the last path segment.
	if !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		return err == nil && matched
	}
	return false
}

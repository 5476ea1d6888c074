package model

import (
	"encoding/hex"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxTitleLength is the maximum number of runes kept from a page title.
	MaxTitleLength = 100

	// idHashLength is the number of hex characters of the URL hash kept in an ID.
	idHashLength = 8

	// idPathLength is the number of characters of the sanitized path kept in an ID.
	idPathLength = 20

	// idTimeLayout is the capture time component of an ID.
	idTimeLayout = "20060102_150405"
)

// Snapshot is one captured page.
type Snapshot struct {
	// ID uniquely identifies this capture event.
	ID string `json:"snapshot_id"`

	// URL is the absolute URL that was fetched.
	URL string `json:"url"`

	// Title is the page title, already normalized with NormalizeTitle.
	Title string `json:"title"`

	// CapturedAt is when the page was captured.
	CapturedAt time.Time `json:"timestamp"`

	// Domain is the host part of URL.
	Domain string `json:"domain"`

	// Path is the wrapper page location relative to the archive root.
	Path string `json:"path"`

	// LinksFound contains every outbound link discovered on the page,
	// sorted and free of duplicates.
	LinksFound []string `json:"links_available"`

	// LinksCaptured is the subset of LinksFound that has a snapshot
	// somewhere in the archive. Rebuilt by the cross-reference pass.
	LinksCaptured []CapturedLink `json:"links_captured"`
}

// CapturedLink is a link whose target was itself captured.
type CapturedLink struct {
	URL        string `json:"url"`
	SnapshotID string `json:"snapshot_id"`
	Title      string `json:"title"`
	Domain     string `json:"domain"`
}

// ArchiveStats summarizes the archive for the index page and reports.
type ArchiveStats struct {
	Snapshots     int      `json:"snapshots"`
	Domains       []string `json:"domains"`
	Sites         []string `json:"sites"`
	LinksFound    int      `json:"links_found"`
	LinksCaptured int      `json:"links_captured"`

	// Coverage is LinksCaptured/LinksFound as a rounded percentage.
	Coverage int `json:"coverage"`
}

// WrapperPath returns the wrapper page location for a snapshot ID.
func WrapperPath(id string) string {
	return id + "/index.html"
}

// ContentPath returns the raw content location for a snapshot ID.
func ContentPath(id string) string {
	return id + "/original.html"
}

// GenerateID derives a snapshot ID from the source URL and the capture time.
//
// The ID is "<domain>_<path>_<hash>_<time>": the host with dots replaced,
// up to 20 characters of the path with slashes replaced ("root" when the
// URL has no path), 8 hex characters of a SHA3-256 hash of the URL string
// and the UTC capture time with second resolution. Every character that is
// unsafe in a directory name is replaced with an underscore.
func GenerateID(rawURL string, at time.Time) string {
	sum := sha3.Sum256([]byte(rawURL))
	hash := hex.EncodeToString(sum[:])[:idHashLength]

	var host, path string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
		path = u.Path
	}

	domain := sanitizeIDPart(strings.ReplaceAll(host, ".", "_"))
	if domain == "" {
		domain = "unknown"
	}

	path = sanitizeIDPart(strings.ReplaceAll(path, "/", "_"))
	if len(path) > idPathLength {
		path = path[:idPathLength]
	}
	if path == "" {
		path = "root"
	}

	return domain + "_" + path + "_" + hash + "_" + at.UTC().Format(idTimeLayout)
}

// sanitizeIDPart keeps ASCII letters, digits, '-' and '_'; anything else becomes '_'.
func sanitizeIDPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NormalizeTitle collapses whitespace, applies NFC normalization and keeps at
// most MaxTitleLength runes. An empty result falls back to fallback, which
// is normally the page URL.
func NormalizeTitle(title, fallback string) string {
	t := strings.Join(strings.Fields(norm.NFC.String(title)), " ")
	if t == "" {
		return fallback
	}
	return truncateRunes(t, MaxTitleLength)
}

// Ellipsis shortens s to max runes and appends "..." when it was cut.
func Ellipsis(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return truncateRunes(s, maxRunes) + "..."
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// DomainOf returns the host of rawURL, or an empty string when it does not parse.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// CanonicalURL is the form of a URL used for visited checks and snapshot
// matching: the fragment is dropped, scheme and host are lowercased and an
// empty path becomes "/". Unparseable input is returned unchanged.
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String()
}

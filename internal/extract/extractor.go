package extract

import (
	"bytes"
	"io"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Result is what extraction found on one page.
type Result struct {
	// Title is the raw text of the first <title> element, trimmed.
	// Empty when the page has none.
	Title string

	// Links contains absolute http(s) URLs, sorted and unique.
	Links []string
}

// Extractor extracts links and titles from HTML content.
// The zero value is ready to use.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// linkElements are the elements whose href attribute is a link.
var linkElements = map[string]bool{
	"a":    true,
	"area": true,
	"link": true,
}

// Extract parses content fetched from baseURL. contentType is the
// Content-Type header value, used to pick a character set; it may be empty.
func (e *Extractor) Extract(content []byte, contentType string, baseURL *url.URL) Result {
	doc, err := html.Parse(decode(content, contentType))
	if err != nil {
		// html.Parse only fails on reader errors; treat the page as linkless.
		return Result{Links: []string{}}
	}

	query := goquery.NewDocumentFromNode(doc)
	base := documentBase(query, baseURL)

	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && linkElements[n.Data] {
			if href, ok := attr(n, "href"); ok {
				if link, ok := resolve(base, href); ok {
					seen[link] = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}
	slices.Sort(links)

	return Result{
		Title: strings.TrimSpace(query.Find("title").First().Text()),
		Links: links,
	}
}

// Links is a convenience wrapper returning only the link set.
func Links(content []byte, baseURL *url.URL) []string {
	return New().Extract(content, "", baseURL).Links
}

// decode converts content to UTF-8 based on the Content-Type header and any
// <meta charset> in the document. Unknown encodings leave content untouched.
func decode(content []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(content), contentType)
	if err != nil {
		return bytes.NewReader(content)
	}
	return r
}

// documentBase returns the URL relative references resolve against.
func documentBase(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return pageURL.ResolveReference(ref)
}

// resolve turns an href into an absolute http(s) URL.
// It reports false for anything that should not be followed.
func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}

// attr retrieves an attribute value from an HTML node.
func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

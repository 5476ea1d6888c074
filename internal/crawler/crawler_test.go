package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/snapcrawl/internal/model"
	"github.com/nao1215/snapcrawl/internal/store"
)

// fakeSite serves canned pages and records every fetch.
type fakeSite struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	calls []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: make(map[string]string), fail: make(map[string]error)}
}

// page registers rawURL with a title and links.
func (s *fakeSite) page(rawURL, title string, links ...string) {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", title)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	s.pages[rawURL] = b.String()
}

func (s *fakeSite) Fetch(_ context.Context, rawURL string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, rawURL)
	if err, ok := s.fail[rawURL]; ok {
		return nil, err
	}
	body, ok := s.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("%w: %s returned 404", ErrUnexpectedStatus, rawURL)
	}
	return &Page{URL: rawURL, ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
}

func (s *fakeSite) fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func noPause(context.Context, time.Duration) error { return nil }

func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), t.TempDir(), store.FormatJSON,
		store.WithClock(stepClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func run(t *testing.T, site *fakeSite, archive Archive, seed string, opts ...Option) *Result {
	t.Helper()
	opts = append([]Option{WithPause(noPause)}, opts...)
	result, err := New(site, archive, opts...).Run(context.Background(), seed)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return result
}

func TestCrawlerRun(t *testing.T) {
	t.Parallel()

	t.Run("captures pages breadth first and cross-references them", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b", "/c")
		site.page("https://a.test/b", "B", "/")
		site.page("https://a.test/c", "C")
		s := openStore(t)

		result := run(t, site, s, "https://a.test/", WithMaxDepth(1), WithMaxPages(10))

		want := []string{"https://a.test/", "https://a.test/b", "https://a.test/c"}
		if got := site.fetched(); !slices.Equal(got, want) {
			t.Errorf("fetch order = %v, want %v", got, want)
		}
		if len(result.Captured) != 3 || s.Len() != 3 {
			t.Fatalf("expected 3 snapshots, got %d (store %d)", len(result.Captured), s.Len())
		}

		seed, ok := s.Latest("https://a.test/")
		if !ok {
			t.Fatal("seed snapshot missing")
		}
		var captured []string
		for _, l := range seed.LinksCaptured {
			captured = append(captured, l.URL)
		}
		if !slices.Equal(captured, []string{"https://a.test/b", "https://a.test/c"}) {
			t.Errorf("seed links captured = %v", captured)
		}

		b, _ := s.Latest("https://a.test/b")
		if len(b.LinksCaptured) != 1 || b.LinksCaptured[0].SnapshotID != seed.ID {
			t.Errorf("B should link back to the seed snapshot, got %+v", b.LinksCaptured)
		}
	})

	t.Run("never fetches beyond the depth limit", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b")
		site.page("https://a.test/b", "B", "/c")
		site.page("https://a.test/c", "C", "/d")
		site.page("https://a.test/d", "D")

		result := run(t, site, openStore(t), "https://a.test/", WithMaxDepth(1))

		if got := site.fetched(); !slices.Equal(got, []string{"https://a.test/", "https://a.test/b"}) {
			t.Errorf("fetched %v", got)
		}
		if result.SkippedDepth != 1 {
			t.Errorf("expected 1 entry dropped for depth, got %d", result.SkippedDepth)
		}
	})

	t.Run("depth zero captures only the seed", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b", "/c")
		s := openStore(t)

		run(t, site, s, "https://a.test/", WithMaxDepth(0))

		if got := site.fetched(); len(got) != 1 {
			t.Errorf("expected only the seed, fetched %v", got)
		}
		seed, _ := s.Latest("https://a.test/")
		if len(seed.LinksFound) != 2 || len(seed.LinksCaptured) != 0 {
			t.Errorf("unexpected links: found %v captured %v", seed.LinksFound, seed.LinksCaptured)
		}
	})

	t.Run("stops when the page budget is spent", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		links := make([]string, 0, 10)
		for i := range 10 {
			p := fmt.Sprintf("/p%d", i)
			links = append(links, p)
			site.page("https://a.test"+p, p)
		}
		site.page("https://a.test/", "A", links...)
		s := openStore(t)

		result := run(t, site, s, "https://a.test/", WithMaxDepth(1), WithMaxPages(3))

		if len(result.Captured) != 3 || s.Len() != 3 {
			t.Errorf("expected 3 captures, got %d (store %d)", len(result.Captured), s.Len())
		}
		if len(site.fetched()) != 3 {
			t.Errorf("expected 3 fetches, got %v", site.fetched())
		}
		if !result.BudgetExhausted() {
			t.Error("expected the budget to be reported as exhausted")
		}
	})

	t.Run("a failed fetch is visited and never retried", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b", "/c")
		site.page("https://a.test/c", "C", "/b")
		site.fail["https://a.test/b"] = errors.New("connection reset")
		s := openStore(t)

		result := run(t, site, s, "https://a.test/", WithMaxDepth(3))

		count := 0
		for _, u := range site.fetched() {
			if u == "https://a.test/b" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected B to be fetched once, got %d", count)
		}
		if len(result.Failed) != 1 || result.Failed[0].URL != "https://a.test/b" {
			t.Errorf("unexpected failures: %+v", result.Failed)
		}
		if _, ok := s.Latest("https://a.test/b"); ok {
			t.Error("failed URL must not have a snapshot")
		}
		if !slices.Contains(result.Visited, "https://a.test/b") {
			t.Error("failed URL must be marked visited")
		}
	})

	t.Run("records a repeated link once", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/x", "/x", "/x#frag")
		site.page("https://a.test/x", "X")
		s := openStore(t)

		run(t, site, s, "https://a.test/")

		seed, _ := s.Latest("https://a.test/")
		n := 0
		for _, l := range seed.LinksFound {
			if l == "https://a.test/x" {
				n++
			}
		}
		if n != 1 {
			t.Errorf("expected the link once, got %v", seed.LinksFound)
		}
		if len(site.fetched()) != 2 {
			t.Errorf("expected two fetches, got %v", site.fetched())
		}
	})

	t.Run("fetches each URL at most once per run", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b", "/c")
		site.page("https://a.test/b", "B", "/", "/c")
		site.page("https://a.test/c", "C", "/", "/b")

		run(t, site, openStore(t), "https://a.test/", WithMaxDepth(5))

		seen := make(map[string]int)
		for _, u := range site.fetched() {
			seen[u]++
			if seen[u] > 1 {
				t.Errorf("%s fetched %d times", u, seen[u])
			}
		}
	})

	t.Run("pauses before every fetch", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b")
		site.page("https://a.test/b", "B")

		var pauses []time.Duration
		pause := func(_ context.Context, d time.Duration) error {
			if got, want := len(pauses), len(site.fetched()); got != want {
				t.Errorf("pause %d happened after %d fetches", got, want)
			}
			pauses = append(pauses, d)
			return nil
		}

		_, err := New(site, openStore(t), WithDelay(250*time.Millisecond), WithPause(pause)).
			Run(context.Background(), "https://a.test/")
		if err != nil {
			t.Fatal(err)
		}
		if len(pauses) != 2 {
			t.Fatalf("expected 2 pauses, got %d", len(pauses))
		}
		for _, d := range pauses {
			if d != 250*time.Millisecond {
				t.Errorf("unexpected pause %v", d)
			}
		}
	})

	t.Run("does not follow links outside the host scope", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "https://b.test/", "/local")
		site.page("https://a.test/local", "Local")
		site.page("https://b.test/", "B")
		s := openStore(t)

		result := run(t, site, s, "https://a.test/", WithScope(ScopeHost))

		if slices.Contains(site.fetched(), "https://b.test/") {
			t.Error("out-of-scope link was fetched")
		}
		if result.NotFollowed != 1 {
			t.Errorf("expected 1 link not followed, got %d", result.NotFollowed)
		}
		seed, _ := s.Latest("https://a.test/")
		if !slices.Contains(seed.LinksFound, "https://b.test/") {
			t.Error("out-of-scope link must still be recorded as found")
		}
	})

	t.Run("skips ignored paths", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/admin/panel", "/doc.pdf", "/ok")
		site.page("https://a.test/ok", "OK")

		run(t, site, openStore(t), "https://a.test/", WithIgnorePatterns([]string{"/admin/*", "*.pdf"}))

		if got := site.fetched(); !slices.Equal(got, []string{"https://a.test/", "https://a.test/ok"}) {
			t.Errorf("fetched %v", got)
		}
	})

	t.Run("reuses archived pages when asked to", func(t *testing.T) {
		t.Parallel()

		s := openStore(t)
		if _, err := s.Save(context.Background(), "https://a.test/", []byte("<html></html>"), []string{"https://a.test/b"}, "A"); err != nil {
			t.Fatal(err)
		}
		site := newFakeSite()
		site.page("https://a.test/b", "B")

		result := run(t, site, s, "https://a.test/", WithSkipArchived(true))

		if got := site.fetched(); !slices.Equal(got, []string{"https://a.test/b"}) {
			t.Errorf("fetched %v", got)
		}
		if !slices.Equal(result.Reused, []string{"https://a.test/"}) {
			t.Errorf("reused = %v", result.Reused)
		}
		seed, _ := s.Latest("https://a.test/")
		if len(seed.LinksCaptured) != 1 {
			t.Errorf("expected the archived seed to link to B, got %+v", seed.LinksCaptured)
		}
	})

	t.Run("rejects an invalid seed", func(t *testing.T) {
		t.Parallel()

		for _, seed := range []string{"", "example.com", "ftp://a.test/", "mailto:x@a.test"} {
			_, err := New(newFakeSite(), openStore(t)).Run(context.Background(), seed)
			if !errors.Is(err, ErrInvalidSeed) {
				t.Errorf("seed %q: expected ErrInvalidSeed, got %v", seed, err)
			}
		}
	})
}

// recordingArchive counts calls and can fail Save.
type recordingArchive struct {
	saves      int
	recomputes int
	saveErr    error
}

func (a *recordingArchive) Save(context.Context, string, []byte, []string, string) (string, error) {
	if a.saveErr != nil {
		return "", a.saveErr
	}
	a.saves++
	return fmt.Sprintf("id%d", a.saves), nil
}

func (a *recordingArchive) Latest(string) (*model.Snapshot, bool) { return nil, false }

func (a *recordingArchive) RecomputeAllCrossReferences(context.Context) error {
	a.recomputes++
	return nil
}

func TestCrawlerRunCompletion(t *testing.T) {
	t.Parallel()

	t.Run("recomputes and indexes exactly once", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b", "/c")
		site.page("https://a.test/b", "B")
		site.page("https://a.test/c", "C")
		archive := &recordingArchive{}
		indexed := 0

		run(t, site, archive, "https://a.test/", WithIndexer(IndexerFunc(func(context.Context) error {
			if archive.recomputes != 1 {
				t.Errorf("index generated before cross-references were rebuilt")
			}
			indexed++
			return nil
		})))

		if archive.saves != 3 || archive.recomputes != 1 || indexed != 1 {
			t.Errorf("saves=%d recomputes=%d indexed=%d", archive.saves, archive.recomputes, indexed)
		}
	})

	t.Run("aborts on a persistence failure", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A", "/b")
		site.page("https://a.test/b", "B")
		errDisk := errors.New("disk full")
		archive := &recordingArchive{saveErr: errDisk}

		result, err := New(site, archive, WithPause(noPause)).Run(context.Background(), "https://a.test/")
		if !errors.Is(err, errDisk) {
			t.Fatalf("expected the save error, got %v", err)
		}
		if len(site.fetched()) != 1 {
			t.Errorf("crawl continued after the failure: %v", site.fetched())
		}
		if archive.recomputes != 0 {
			t.Error("cross-references must not be rebuilt after an aborted run")
		}
		if result == nil || len(result.Captured) != 0 {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://a.test/", "A")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := New(site, &recordingArchive{}, WithPause(noPause)).Run(ctx, "https://a.test/")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(site.fetched()) != 0 {
			t.Error("no fetch expected after cancellation")
		}
	})
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/admin/*", "/admin/users", true},
		{"/admin/*", "/admin", true},
		{"/admin/*", "/administrator", false},
		{"*.pdf", "/docs/file.pdf", true},
		{"*.pdf", "/docs/file.html", false},
		{"/api/v?", "/api/v1", true},
		{"logout*", "/account/logout-now", true},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestScope(t *testing.T) {
	t.Parallel()

	t.Run("site scope groups subdomains", func(t *testing.T) {
		t.Parallel()

		f := filter{scope: ScopeSite}
		if !f.allows("https://www.example.co.uk/", "https://blog.example.co.uk/x") {
			t.Error("expected subdomain to be in scope")
		}
		if f.allows("https://www.example.co.uk/", "https://other.co.uk/") {
			t.Error("expected another site to be out of scope")
		}
	})

	t.Run("parses scope names", func(t *testing.T) {
		t.Parallel()

		for in, want := range map[string]Scope{"": ScopeAll, "ALL": ScopeAll, "host": ScopeHost, "site": ScopeSite} {
			got, err := ParseScope(in)
			if err != nil || got != want {
				t.Errorf("ParseScope(%q) = %q, %v", in, got, err)
			}
		}
		if _, err := ParseScope("planet"); err == nil {
			t.Error("expected an error for an unknown scope")
		}
	})
}

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/snapcrawl/internal/model"
)

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		t := current
		current = current.Add(step)
		return t
	}
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// openTestStore opens a store of the given format in a temporary directory.
func openTestStore(t *testing.T, format string, now func() time.Time) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	s, err := Open(context.Background(), dir, format, WithClock(now))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func mustSave(t *testing.T, s *Store, url string, links []string, title string) string {
	t.Helper()
	id, err := s.Save(context.Background(), url, []byte("<html>"+url+"</html>"), links, title)
	if err != nil {
		t.Fatalf("failed to save %s: %v", url, err)
	}
	return id
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("missing index yields an empty store", func(t *testing.T) {
		t.Parallel()

		for _, format := range []string{FormatJSON, FormatSQLite} {
			s, _ := openTestStore(t, format, time.Now)
			if s.Len() != 0 {
				t.Errorf("%s: expected empty store, got %d snapshots", format, s.Len())
			}
		}
	})

	t.Run("empty index file yields an empty store", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, IndexFileName), []byte("  \n"), 0600); err != nil {
			t.Fatal(err)
		}
		s, err := Open(context.Background(), dir, FormatJSON)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer s.Close()
		if s.Len() != 0 {
			t.Errorf("expected empty store, got %d", s.Len())
		}
	})

	t.Run("malformed index is fatal", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, IndexFileName), []byte(`{"x": [`), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := Open(context.Background(), dir, FormatJSON)
		if !errors.Is(err, ErrCorruptIndex) {
			t.Errorf("expected ErrCorruptIndex, got %v", err)
		}
	})

	t.Run("record without url is fatal", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, IndexFileName), []byte(`{"a": {"title": "x"}}`), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := Open(context.Background(), dir, FormatJSON)
		if !errors.Is(err, ErrCorruptIndex) {
			t.Errorf("expected ErrCorruptIndex, got %v", err)
		}
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := Open(context.Background(), t.TempDir(), "xml")
		if !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("expected ErrUnknownFormat, got %v", err)
		}
	})
}

func TestSave(t *testing.T) {
	t.Parallel()

	t.Run("creates a record with content and metadata", func(t *testing.T) {
		t.Parallel()

		s, dir := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		id := mustSave(t, s, "https://a.test/page", []string{"https://a.test/z", "https://a.test/y", "https://a.test/z"}, "Page")

		snap, ok := s.Get(id)
		if !ok {
			t.Fatalf("snapshot %s not found", id)
		}
		if snap.URL != "https://a.test/page" || snap.Title != "Page" || snap.Domain != "a.test" {
			t.Errorf("unexpected record: %+v", snap)
		}
		if !snap.CapturedAt.Equal(testEpoch) {
			t.Errorf("expected capture time %v, got %v", testEpoch, snap.CapturedAt)
		}
		if !slices.Equal(snap.LinksFound, []string{"https://a.test/y", "https://a.test/z"}) {
			t.Errorf("expected sorted unique links, got %v", snap.LinksFound)
		}
		if snap.Path != id+"/index.html" {
			t.Errorf("unexpected path %q", snap.Path)
		}

		content, err := os.ReadFile(filepath.Join(dir, id, "original.html"))
		if err != nil {
			t.Fatalf("content not written: %v", err)
		}
		if string(content) != "<html>https://a.test/page</html>" {
			t.Errorf("unexpected content %q", content)
		}
	})

	t.Run("falls back to the url when the title is empty", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		id := mustSave(t, s, "https://a.test/", nil, "")
		snap, _ := s.Get(id)
		if snap.Title != "https://a.test/" {
			t.Errorf("expected url as title, got %q", snap.Title)
		}
		if snap.LinksFound == nil {
			t.Error("expected an empty non-nil link set")
		}
	})

	t.Run("never overwrites a previous capture of the same url", func(t *testing.T) {
		t.Parallel()

		// A frozen clock forces an ID collision.
		s, _ := openTestStore(t, FormatJSON, func() time.Time { return testEpoch })
		first := mustSave(t, s, "https://a.test/", nil, "one")
		second := mustSave(t, s, "https://a.test/", nil, "two")

		if first == second {
			t.Fatalf("expected distinct IDs, both were %q", first)
		}
		if s.Len() != 2 {
			t.Errorf("expected 2 snapshots, got %d", s.Len())
		}
	})

	t.Run("persists across reopen", func(t *testing.T) {
		t.Parallel()

		for _, format := range []string{FormatJSON, FormatSQLite} {
			dir := t.TempDir()
			s, err := Open(context.Background(), dir, format, WithClock(stepClock(testEpoch, time.Second)))
			if err != nil {
				t.Fatalf("%s: open: %v", format, err)
			}
			a := mustSave(t, s, "https://a.test/", []string{"https://a.test/b"}, "A")
			b := mustSave(t, s, "https://a.test/b", []string{"https://a.test/"}, "B")
			if err := s.RecomputeAllCrossReferences(context.Background()); err != nil {
				t.Fatalf("%s: recompute: %v", format, err)
			}
			_ = s.Close()

			reopened, err := Open(context.Background(), dir, format)
			if err != nil {
				t.Fatalf("%s: reopen: %v", format, err)
			}
			all := reopened.All()
			_ = reopened.Close()

			if len(all) != 2 || all[0].ID != a || all[1].ID != b {
				t.Fatalf("%s: unexpected records after reopen: %+v", format, all)
			}
			if !all[0].CapturedAt.Equal(testEpoch) {
				t.Errorf("%s: capture time not preserved: %v", format, all[0].CapturedAt)
			}
			if len(all[0].LinksCaptured) != 1 || all[0].LinksCaptured[0].SnapshotID != b {
				t.Errorf("%s: cross-references not preserved: %+v", format, all[0].LinksCaptured)
			}
		}
	})

	t.Run("persistence failure is returned and leaves no record", func(t *testing.T) {
		t.Parallel()

		s := New(&failingIndex{}, NewFileContentWriter(t.TempDir()))
		_, err := s.Save(context.Background(), "https://a.test/", nil, nil, "x")
		if !errors.Is(err, errSaveFailed) {
			t.Errorf("expected errSaveFailed, got %v", err)
		}
		if s.Len() != 0 {
			t.Errorf("expected no records, got %d", s.Len())
		}
	})
}

func TestResolveCaptured(t *testing.T) {
	t.Parallel()

	t.Run("returns only links that have a snapshot", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		b := mustSave(t, s, "https://a.test/b", nil, "B")

		got := s.ResolveCaptured([]string{"https://a.test/b", "https://a.test/c"})
		want := []model.CapturedLink{{URL: "https://a.test/b", SnapshotID: b, Title: "B", Domain: "a.test"}}
		if !slices.Equal(got, want) {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("prefers the most recent capture", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Minute))
		mustSave(t, s, "https://a.test/b", nil, "old")
		newer := mustSave(t, s, "https://a.test/b", nil, "new")

		got := s.ResolveCaptured([]string{"https://a.test/b"})
		if len(got) != 1 || got[0].SnapshotID != newer || got[0].Title != "new" {
			t.Errorf("expected the newer capture, got %+v", got)
		}

		latest, ok := s.Latest("https://a.test/b")
		if !ok || latest.ID != newer {
			t.Errorf("Latest returned %+v", latest)
		}
	})

	t.Run("breaks an exact time tie in favor of the later capture", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, func() time.Time { return testEpoch })
		mustSave(t, s, "https://a.test/b", nil, "first")
		second := mustSave(t, s, "https://a.test/b", nil, "second")

		got := s.ResolveCaptured([]string{"https://a.test/b"})
		if len(got) != 1 || got[0].SnapshotID != second {
			t.Errorf("expected %s, got %+v", second, got)
		}
	})

	t.Run("keeps capture order past nine captures in one second", func(t *testing.T) {
		t.Parallel()

		s, dir := openTestStore(t, FormatJSON, func() time.Time { return testEpoch })
		var last string
		for i := range 10 {
			last = mustSave(t, s, "https://a.test/b", nil, fmt.Sprintf("capture %d", i+1))
		}
		if !strings.HasSuffix(last, "_10") {
			t.Fatalf("expected the tenth ID to end in _10, got %s", last)
		}

		latest, ok := s.Latest("https://a.test/b")
		if !ok || latest.ID != last || latest.Title != "capture 10" {
			t.Errorf("expected %s, got %+v", last, latest)
		}

		reopened, err := Open(context.Background(), dir, FormatJSON)
		if err != nil {
			t.Fatal(err)
		}
		defer reopened.Close()
		latest, ok = reopened.Latest("https://a.test/b")
		if !ok || latest.ID != last {
			t.Errorf("after reopen: expected %s, got %+v", last, latest)
		}
	})

	t.Run("reports repeated links once", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		mustSave(t, s, "https://a.test/b", nil, "B")

		got := s.ResolveCaptured([]string{"https://a.test/b", "https://a.test/b"})
		if len(got) != 1 {
			t.Errorf("expected 1 result, got %d", len(got))
		}
	})

	t.Run("matches links that differ only by fragment", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		id := mustSave(t, s, "https://a.test/b", nil, "B")

		got := s.ResolveCaptured([]string{"https://a.test/b#top"})
		if len(got) != 1 || got[0].SnapshotID != id || got[0].URL != "https://a.test/b#top" {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		mustSave(t, s, "https://a.test/a", nil, "A")
		mustSave(t, s, "https://a.test/b", nil, "B")

		links := []string{"https://a.test/a", "https://a.test/b", "https://a.test/c"}
		first := s.ResolveCaptured(links)
		second := s.ResolveCaptured(links)
		if !slices.Equal(first, second) {
			t.Errorf("expected identical results:\n%+v\n%+v", first, second)
		}
	})
}

func TestRecomputeAllCrossReferences(t *testing.T) {
	t.Parallel()

	t.Run("fills links captured from links found", func(t *testing.T) {
		t.Parallel()

		s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		a := mustSave(t, s, "https://a.test/", []string{"https://a.test/b", "https://a.test/c"}, "A")
		b := mustSave(t, s, "https://a.test/b", []string{"https://a.test/"}, "B")

		if err := s.RecomputeAllCrossReferences(context.Background()); err != nil {
			t.Fatalf("recompute: %v", err)
		}

		snapA, _ := s.Get(a)
		if len(snapA.LinksCaptured) != 1 || snapA.LinksCaptured[0].SnapshotID != b {
			t.Errorf("expected A to reference B only, got %+v", snapA.LinksCaptured)
		}
		if len(snapA.LinksFound) != 2 {
			t.Errorf("links found must be kept, got %v", snapA.LinksFound)
		}
		snapB, _ := s.Get(b)
		if len(snapB.LinksCaptured) != 1 || snapB.LinksCaptured[0].SnapshotID != a {
			t.Errorf("expected B to reference A, got %+v", snapB.LinksCaptured)
		}
	})

	t.Run("leaves the index byte-identical when run twice", func(t *testing.T) {
		t.Parallel()

		s, dir := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
		mustSave(t, s, "https://a.test/", []string{"https://a.test/b"}, "A")
		mustSave(t, s, "https://a.test/b", []string{"https://a.test/", "https://a.test/c"}, "B")

		indexPath := filepath.Join(dir, IndexFileName)
		if err := s.RecomputeAllCrossReferences(context.Background()); err != nil {
			t.Fatal(err)
		}
		first, err := os.ReadFile(indexPath)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.RecomputeAllCrossReferences(context.Background()); err != nil {
			t.Fatal(err)
		}
		second, err := os.ReadFile(indexPath)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, second) {
			t.Errorf("index changed between passes:\n%s\n---\n%s", first, second)
		}
	})
}

func TestStats(t *testing.T) {
	t.Parallel()

	s, _ := openTestStore(t, FormatJSON, stepClock(testEpoch, time.Second))
	mustSave(t, s, "https://www.a.test/", []string{"https://blog.a.test/x", "https://b.example.com/y"}, "A")
	mustSave(t, s, "https://blog.a.test/x", nil, "X")
	mustSave(t, s, "https://b.example.com/", nil, "B")
	if err := s.RecomputeAllCrossReferences(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats := s.Stats()
	if stats.Snapshots != 3 {
		t.Errorf("expected 3 snapshots, got %d", stats.Snapshots)
	}
	if stats.LinksFound != 2 || stats.LinksCaptured != 1 || stats.Coverage != 50 {
		t.Errorf("unexpected link stats: %+v", stats)
	}
	if !slices.Equal(stats.Domains, []string{"b.example.com", "blog.a.test", "www.a.test"}) {
		t.Errorf("unexpected domains %v", stats.Domains)
	}
	if !slices.Equal(stats.Sites, []string{"a.test", "example.com"}) {
		t.Errorf("unexpected sites %v", stats.Sites)
	}
}

func TestSiteOfURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://www.example.co.uk/a": "example.co.uk",
		"http://127.0.0.1:8080/":      "127.0.0.1",
		"https://localhost/":          "localhost",
	}
	for in, want := range tests {
		if got := siteOf(in); got != want {
			t.Errorf("siteOf(%q) = %q, want %q", in, got, want)
		}
	}
}

var errSaveFailed = errors.New("disk full")

type failingIndex struct{}

func (f *failingIndex) Load(context.Context) ([]*model.Snapshot, error) { return nil, nil }
func (f *failingIndex) Save(context.Context, []*model.Snapshot) error   { return errSaveFailed }
func (f *failingIndex) Close() error                                    { return nil }

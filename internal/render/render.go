package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/snapcrawl/internal/model"
)

const (
	// MaxWrapperLinks is the number of captured links listed on a wrapper page.
	MaxWrapperLinks = 50

	// linkTextLength is the number of characters of a link shown in a wrapper.
	linkTextLength = 70

	// wrapperTitleLength is the number of characters of the title shown in a wrapper.
	wrapperTitleLength = 60

	// IndexFileName is the archive index page.
	IndexFileName = "index.html"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"ellipsis": model.Ellipsis,
	"kb":       func(n int64) int64 { return n / 1024 },
	"add1":     func(i int) int { return i + 1 },
	"date":     func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
}).ParseFS(templateFS, "templates/*.html.tmpl"))

// Renderer writes wrapper pages and the index into an archive directory.
type Renderer struct {
	dir         string
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithConcurrency sets how many wrapper pages are written at the same time.
func WithConcurrency(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithClock sets the time shown as the index generation time.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		r.now = now
	}
}

// New creates a Renderer for the archive in dir.
func New(dir string, opts ...Option) *Renderer {
	r := &Renderer{
		dir:         dir,
		concurrency: runtime.NumCPU(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type wrapperLink struct {
	Text       string
	URL        string
	SnapshotID string
	Title      string
}

type wrapperData struct {
	Snapshot     *model.Snapshot
	Title        string
	Links        []wrapperLink
	HiddenLinks  int
	ContentBytes int64
}

type indexData struct {
	Stats       model.ArchiveStats
	Snapshots   []*model.Snapshot
	GeneratedAt time.Time
}

// Render writes the wrapper page of every snapshot, then the index.
// snapshots are shown newest first on the index.
func (r *Renderer) Render(ctx context.Context, snapshots []*model.Snapshot, stats model.ArchiveStats) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, snap := range snapshots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return r.RenderSnapshot(snap)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.RenderIndex(snapshots, stats); err != nil {
		return err
	}
	r.logger.Debug("archive rendered", "snapshots", len(snapshots), "dir", r.dir)
	return nil
}

// RenderSnapshot writes <dir>/<id>/index.html for snap.
func (r *Renderer) RenderSnapshot(snap *model.Snapshot) error {
	data := wrapperData{
		Snapshot: snap,
		Title:    model.Ellipsis(snap.Title, wrapperTitleLength),
	}
	for i, link := range snap.LinksCaptured {
		if i == MaxWrapperLinks {
			data.HiddenLinks = len(snap.LinksCaptured) - MaxWrapperLinks
			break
		}
		data.Links = append(data.Links, wrapperLink{
			Text:       model.Ellipsis(link.URL, linkTextLength),
			URL:        link.URL,
			SnapshotID: link.SnapshotID,
			Title:      link.Title,
		})
	}
	if info, err := os.Stat(filepath.Join(r.dir, filepath.FromSlash(model.ContentPath(snap.ID)))); err == nil {
		data.ContentBytes = info.Size()
	}

	return r.write(filepath.FromSlash(model.WrapperPath(snap.ID)), "snapshot.html.tmpl", data)
}

// RenderIndex writes <dir>/index.html.
func (r *Renderer) RenderIndex(snapshots []*model.Snapshot, stats model.ArchiveStats) error {
	newest := slices.Clone(snapshots)
	slices.SortStableFunc(newest, func(a, b *model.Snapshot) int {
		return b.CapturedAt.Compare(a.CapturedAt)
	})
	return r.write(IndexFileName, "index.html.tmpl", indexData{
		Stats:       stats,
		Snapshots:   newest,
		GeneratedAt: r.now(),
	})
}

func (r *Renderer) write(rel, name string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", rel, err)
	}

	path := filepath.Join(r.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil { //nolint:gosec // the archive is meant to be browsed
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

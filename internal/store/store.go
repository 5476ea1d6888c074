package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/snapcrawl/internal/model"
)

var (
	// ErrCorruptIndex is returned by Load when the persisted index cannot be decoded.
	// The store does not attempt to recover partial state.
	ErrCorruptIndex = errors.New("corrupt snapshot index")

	// ErrUnknownFormat is returned by Open for an unsupported index format.
	ErrUnknownFormat = errors.New("unknown index format")
)

// Index persists the full set of snapshot records.
type Index interface {
	// Load returns every persisted record. A missing or empty index yields
	// no records and no error; undecodable content yields ErrCorruptIndex.
	Load(ctx context.Context) ([]*model.Snapshot, error)

	// Save replaces the persisted records with snapshots.
	Save(ctx context.Context, snapshots []*model.Snapshot) error

	// Close releases the backend.
	Close() error
}

// ContentWriter persists the raw content of a snapshot.
type ContentWriter interface {
	WriteContent(ctx context.Context, id string, content []byte) error
}

// Store is the snapshot store.
type Store struct {
	index   Index
	content ContentWriter
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.RWMutex
	snapshots map[string]*model.Snapshot
	// order holds IDs sorted by capture time, then ID.
	order []string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for capture timestamps and IDs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty Store over the given backends.
// Call Load to populate it from the index.
func New(index Index, content ContentWriter, opts ...Option) *Store {
	s := &Store{
		index:     index,
		content:   content,
		now:       time.Now,
		logger:    slog.Default(),
		snapshots: make(map[string]*model.Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the backend for format inside dir and loads the index.
// format is "json" or "sqlite".
func Open(ctx context.Context, dir, format string, opts ...Option) (*Store, error) {
	var (
		index   Index
		content ContentWriter
	)

	switch format {
	case FormatJSON:
		ji, err := NewJSONIndex(dir)
		if err != nil {
			return nil, err
		}
		index, content = ji, NewFileContentWriter(dir)
	case FormatSQLite:
		si, err := OpenSQLiteIndex(dir, DefaultSQLiteOptions())
		if err != nil {
			return nil, err
		}
		// Content is still written as files so the archive stays browsable.
		index, content = si, NewFileContentWriter(dir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	s := New(index, content, opts...)
	if err := s.Load(ctx); err != nil {
		_ = index.Close()
		return nil, err
	}
	return s, nil
}

// Supported index formats.
const (
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// Close closes the index backend.
func (s *Store) Close() error {
	return s.index.Close()
}

// Load replaces the in-memory records with the persisted index.
func (s *Store) Load(ctx context.Context) error {
	records, err := s.index.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[string]*model.Snapshot, len(records))
	s.order = s.order[:0]
	for _, rec := range records {
		if rec.LinksFound == nil {
			rec.LinksFound = []string{}
		}
		if rec.LinksCaptured == nil {
			rec.LinksCaptured = []model.CapturedLink{}
		}
		s.snapshots[rec.ID] = rec
		s.order = append(s.order, rec.ID)
	}
	s.sortOrder()

	s.logger.Debug("snapshot index loaded", "snapshots", len(records))
	return nil
}

// Persist writes every record to the index.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	records := make([]*model.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.snapshots[id])
	}
	if err := s.index.Save(ctx, records); err != nil {
		return fmt.Errorf("failed to persist snapshot index: %w", err)
	}
	return nil
}

// uniqueIDLocked returns an ID for a capture of rawURL at the given time that is unique
// within the store. Captures of one URL within the same second get the
// suffixes _2, _3, ... in capture order.
func (s *Store) uniqueIDLocked(rawURL string, at time.Time) string {
	id := model.GenerateID(rawURL, at)
	if _, taken := s.snapshots[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := id + "_" + strconv.Itoa(n)
		if _, taken := s.snapshots[candidate]; !taken {
			return candidate
		}
	}
}

// Save records a new snapshot of rawURL and persists the index.
// A URL that already has snapshots gets another one; records are never
// overwritten. The URL is stored in canonical form and links as a sorted
// set. An empty title falls back to the URL.
func (s *Store) Save(ctx context.Context, rawURL string, content []byte, links []string, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawURL = model.CanonicalURL(rawURL)

	at := s.now().UTC()
	id := s.uniqueIDLocked(rawURL, at)

	if err := s.content.WriteContent(ctx, id, content); err != nil {
		return "", fmt.Errorf("failed to write snapshot content: %w", err)
	}

	snap := &model.Snapshot{
		ID:            id,
		URL:           rawURL,
		Title:         model.NormalizeTitle(title, rawURL),
		CapturedAt:    at,
		Domain:        model.DomainOf(rawURL),
		Path:          model.WrapperPath(id),
		LinksFound:    linkSet(links),
		LinksCaptured: []model.CapturedLink{},
	}

	s.snapshots[id] = snap
	s.order = append(s.order, id)
	s.sortOrder()

	if err := s.persistLocked(ctx); err != nil {
		delete(s.snapshots, id)
		s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
		return "", err
	}

	s.logger.Info("snapshot saved", "id", id, "url", rawURL, "links", len(snap.LinksFound))
	return id, nil
}

// ResolveCaptured returns, for each link that has a snapshot, the snapshot
// it resolves to. Links without a snapshot are omitted. The result follows
// the order of links, with repeated links reported once.
func (s *Store) ResolveCaptured(links []string) []model.CapturedLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(links)
}

func (s *Store) resolveLocked(links []string) []model.CapturedLink {
	resolved := make([]model.CapturedLink, 0)
	seen := make(map[string]bool, len(links))
	for _, link := range links {
		if seen[link] {
			continue
		}
		seen[link] = true

		match := s.latestLocked(link)
		if match == nil {
			continue
		}
		resolved = append(resolved, model.CapturedLink{
			URL:        link,
			SnapshotID: match.ID,
			Title:      match.Title,
			Domain:     model.DomainOf(link),
		})
	}
	return resolved
}

// latestLocked scans every record and returns the most recent capture of
// rawURL. A link matches a snapshot when their canonical forms are equal,
// so "page#top" resolves to the capture of "page".
func (s *Store) latestLocked(rawURL string) *model.Snapshot {
	target := model.CanonicalURL(rawURL)
	var match *model.Snapshot
	for _, id := range s.order {
		snap := s.snapshots[id]
		if snap.URL != target {
			continue
		}
		// order is ascending, so a later match is at least as recent.
		match = snap
	}
	return match
}

// RecomputeAllCrossReferences rebuilds LinksCaptured on every record from
// its LinksFound and persists the index. Running it twice with no Save in
// between leaves the index unchanged.
func (s *Store) RecomputeAllCrossReferences(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		snap := s.snapshots[id]
		snap.LinksCaptured = s.resolveLocked(snap.LinksFound)
	}
	return s.persistLocked(ctx)
}

// Latest returns the most recent snapshot of rawURL.
func (s *Store) Latest(rawURL string) (*model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.latestLocked(rawURL)
	if snap == nil {
		return nil, false
	}
	return clone(snap), true
}

// Get returns the snapshot with the given ID.
func (s *Store) Get(id string) (*model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, false
	}
	return clone(snap), true
}

// All returns copies of every snapshot ordered by capture time, then ID.
func (s *Store) All() []*model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*model.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, clone(s.snapshots[id]))
	}
	return all
}

// Len returns the number of snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Stats summarizes the archive. Link counts reflect the last
// cross-reference pass.
func (s *Store) Stats() model.ArchiveStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	domains := make(map[string]bool)
	sites := make(map[string]bool)
	stats := model.ArchiveStats{Snapshots: len(s.order)}
	for _, id := range s.order {
		snap := s.snapshots[id]
		domains[snap.Domain] = true
		sites[siteOf(snap.URL)] = true
		stats.LinksFound += len(snap.LinksFound)
		stats.LinksCaptured += len(snap.LinksCaptured)
	}
	stats.Domains = sortedKeys(domains)
	stats.Sites = sortedKeys(sites)
	if stats.LinksFound > 0 {
		stats.Coverage = int(math.Round(float64(stats.LinksCaptured) / float64(stats.LinksFound) * 100))
	}
	return stats
}

// sortOrder keeps order sorted by capture time, then by capture sequence
// within the same second, so base_10 sorts after base_9.
func (s *Store) sortOrder() {
	slices.SortStableFunc(s.order, func(a, b string) int {
		sa, sb := s.snapshots[a], s.snapshots[b]
		if c := sa.CapturedAt.Compare(sb.CapturedAt); c != 0 {
			return c
		}
		baseA, seqA := captureSequence(sa)
		baseB, seqB := captureSequence(sb)
		if c := strings.Compare(baseA, baseB); c != 0 {
			return c
		}
		if c := cmp.Compare(seqA, seqB); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

// captureSequence splits a snapshot ID into the ID derived from its URL and
// capture time and the same-second sequence number uniqueIDLocked appended.
// The first capture is 1. An ID that does not follow that scheme is
// returned whole with sequence 0.
func captureSequence(snap *model.Snapshot) (string, int) {
	base := model.GenerateID(snap.URL, snap.CapturedAt.UTC())
	if snap.ID == base {
		return base, 1
	}
	suffix, ok := strings.CutPrefix(snap.ID, base+"_")
	if !ok {
		return snap.ID, 0
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 2 {
		return snap.ID, 0
	}
	return base, n
}

// siteOf returns the registrable domain (eTLD+1) of rawURL, falling back
// to the bare hostname for IPs, localhost and unknown suffixes.
func siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return host
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

// linkSet returns links sorted with duplicates removed. It never returns nil.
func linkSet(links []string) []string {
	set := slices.Clone(links)
	slices.Sort(set)
	set = slices.Compact(set)
	if set == nil {
		set = []string{}
	}
	return set
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func clone(snap *model.Snapshot) *model.Snapshot {
	c := *snap
	c.LinksFound = slices.Clone(snap.LinksFound)
	c.LinksCaptured = slices.Clone(snap.LinksCaptured)
	return &c
}

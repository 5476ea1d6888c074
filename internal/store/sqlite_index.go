package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/snapcrawl/internal/model"
)

// SQLiteFileName is the database file name inside the archive directory.
const SQLiteFileName = "snapcrawl.db"

// sqliteTimeLayout keeps a fixed number of fractional digits so that
// captured_at sorts correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteIndex stores the index in a SQLite database, one row per snapshot.
type SQLiteIndex struct {
	db     *sql.DB
	dbPath string
}

// SQLiteOptions configures SQLiteIndex behavior.
type SQLiteOptions struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultSQLiteOptions returns the default database options.
func DefaultSQLiteOptions() SQLiteOptions {
	return SQLiteOptions{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// OpenSQLiteIndex opens or creates the database in dir.
func OpenSQLiteIndex(dir string, opts SQLiteOptions) (*SQLiteIndex, error) {
	dbPath := filepath.Join(dir, SQLiteFileName)

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	idx := &SQLiteIndex{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := idx.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return idx, nil
}

// Path returns the database file path.
func (s *SQLiteIndex) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		domain TEXT NOT NULL,
		path TEXT NOT NULL,
		links_found TEXT NOT NULL,
		links_captured TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_url ON snapshots(url);
	CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON snapshots(captured_at);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Load reads every row.
func (s *SQLiteIndex) Load(ctx context.Context) ([]*model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, url, title, captured_at, domain, path, links_found, links_captured
	FROM snapshots
	ORDER BY captured_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*model.Snapshot
	for rows.Next() {
		var (
			snap                     model.Snapshot
			capturedAt               string
			linksFound, linksCapture string
		)
		if err := rows.Scan(&snap.ID, &snap.URL, &snap.Title, &capturedAt, &snap.Domain, &snap.Path, &linksFound, &linksCapture); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snap.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot %q: bad captured_at %q", ErrCorruptIndex, snap.ID, capturedAt)
		}
		if err := json.Unmarshal([]byte(linksFound), &snap.LinksFound); err != nil {
			return nil, fmt.Errorf("%w: snapshot %q: links_found: %v", ErrCorruptIndex, snap.ID, err)
		}
		if err := json.Unmarshal([]byte(linksCapture), &snap.LinksCaptured); err != nil {
			return nil, fmt.Errorf("%w: snapshot %q: links_captured: %v", ErrCorruptIndex, snap.ID, err)
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, rows.Err()
}

// Save upserts every snapshot inside one transaction.
// Rows for IDs not in snapshots are left untouched; the store never deletes.
func (s *SQLiteIndex) Save(ctx context.Context, snapshots []*model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO snapshots (id, url, title, captured_at, domain, path, links_found, links_captured)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		url = excluded.url,
		title = excluded.title,
		captured_at = excluded.captured_at,
		domain = excluded.domain,
		path = excluded.path,
		links_found = excluded.links_found,
		links_captured = excluded.links_captured
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		linksFound, err := json.Marshal(snap.LinksFound)
		if err != nil {
			return fmt.Errorf("failed to encode links_found: %w", err)
		}
		linksCaptured, err := json.Marshal(snap.LinksCaptured)
		if err != nil {
			return fmt.Errorf("failed to encode links_captured: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			snap.ID,
			snap.URL,
			snap.Title,
			snap.CapturedAt.UTC().Format(sqliteTimeLayout),
			snap.Domain,
			snap.Path,
			string(linksFound),
			string(linksCaptured),
		); err != nil {
			return fmt.Errorf("failed to upsert snapshot %q: %w", snap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return nil
}

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/snapcrawl/internal/model"
)

// IndexFileName is the JSON index file name inside the archive directory.
const IndexFileName = "index.json"

// JSONIndex stores the index as one JSON object keyed by snapshot ID.
// Keys are written in sorted order, so identical records always produce
// identical bytes.
type JSONIndex struct {
	path string
}

// jsonRecord is the on-disk form of a snapshot. The counts are derived and
// ignored on load.
type jsonRecord struct {
	model.Snapshot
	LinksFoundCount    int `json:"links_found"`
	LinksCapturedCount int `json:"links_captured_count"`
}

// NewJSONIndex returns a JSONIndex for dir, creating the directory if needed.
func NewJSONIndex(dir string) (*JSONIndex, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &JSONIndex{path: filepath.Join(dir, IndexFileName)}, nil
}

// Path returns the index file path.
func (j *JSONIndex) Path() string {
	return j.path
}

// Load reads the index file.
func (j *JSONIndex) Load(_ context.Context) ([]*model.Snapshot, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", j.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var records map[string]jsonRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, j.path, err)
	}

	snapshots := make([]*model.Snapshot, 0, len(records))
	for id, rec := range records {
		snap := rec.Snapshot
		if snap.ID == "" {
			snap.ID = id
		}
		if snap.ID != id {
			return nil, fmt.Errorf("%w: %s: record %q has snapshot_id %q", ErrCorruptIndex, j.path, id, snap.ID)
		}
		if snap.URL == "" {
			return nil, fmt.Errorf("%w: %s: record %q has no url", ErrCorruptIndex, j.path, id)
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, nil
}

// Save rewrites the index file. The new content is written to a temporary
// file and renamed into place so a crash never leaves a half-written index.
func (j *JSONIndex) Save(_ context.Context, snapshots []*model.Snapshot) error {
	records := make(map[string]jsonRecord, len(snapshots))
	for _, snap := range snapshots {
		records[snap.ID] = jsonRecord{
			Snapshot:           *snap,
			LinksFoundCount:    len(snap.LinksFound),
			LinksCapturedCount: len(snap.LinksCaptured),
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(j.path)
	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temporary index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temporary index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary index: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil { //nolint:gosec // the archive is meant to be browsed
		return fmt.Errorf("failed to set index permissions: %w", err)
	}
	if err := os.Rename(tmpName, j.path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open between calls.
func (j *JSONIndex) Close() error {
	return nil
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/snapcrawl/internal/model"
)

// FileContentWriter writes each snapshot's content to <dir>/<id>/original.html.
type FileContentWriter struct {
	dir string
}

// NewFileContentWriter returns a FileContentWriter rooted at dir.
func NewFileContentWriter(dir string) *FileContentWriter {
	return &FileContentWriter{dir: dir}
}

// WriteContent writes content for the snapshot id.
func (w *FileContentWriter) WriteContent(_ context.Context, id string, content []byte) error {
	path := filepath.Join(w.dir, filepath.FromSlash(model.ContentPath(id)))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil { //nolint:gosec // the archive is meant to be browsed
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadContent returns the stored content of a snapshot.
func (w *FileContentWriter) ReadContent(id string) ([]byte, error) {
	return os.ReadFile(filepath.Join(w.dir, filepath.FromSlash(model.ContentPath(id)))) //nolint:gosec // id comes from the index
}

// Package storage persists finished artifacts.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pagepress/internal/models"
)

// Sink receives each finalized artifact exactly once.
type Sink interface {
	Persist(ctx context.Context, a models.Artifact) error
}

// FileSink writes artifacts into a directory.
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

// Persist writes through a temporary file and renames it into place so a
// partially written artifact is never visible under its final name.
func (s *FileSink) Persist(ctx context.Context, a models.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(a.Filename)
	if name == "." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		return fmt.Errorf("storage: invalid filename %q", a.Filename)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", s.Dir, err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".pagepress-*")
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, name)); err != nil {
		return fmt.Errorf("storage: rename %s: %w", name, err)
	}
	return nil
}

// Multi fans one artifact out to several sinks and reports the first error
// after trying all of them.
type Multi []Sink

func (m Multi) Persist(ctx context.Context, a models.Artifact) error {
	var first error
	for _, s := range m {
		if err := s.Persist(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

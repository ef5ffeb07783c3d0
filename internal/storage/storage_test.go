package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pagepress/internal/models"
)

func TestFileSinkPersist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewFileSink(dir)

	a := models.Artifact{Filename: "2024-01-02T03_04_05 example.com.epub", MimeType: models.MimeEPUB, Data: []byte("PK")}
	if err := s.Persist(context.Background(), a); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, a.Filename))
	if err != nil || string(got) != "PK" {
		t.Fatalf("read back = %q, %v", got, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1 (temp file left behind?)", len(entries))
	}
}

func TestFileSinkRejects(t *testing.T) {
	s := NewFileSink(t.TempDir())
	if err := s.Persist(context.Background(), models.Artifact{Filename: " "}); err == nil {
		t.Error("blank filename accepted")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Persist(ctx, models.Artifact{Filename: "a.pdf"}); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled ctx: err = %v", err)
	}
}

type recordSink struct {
	names []string
	err   error
}

func (r *recordSink) Persist(_ context.Context, a models.Artifact) error {
	r.names = append(r.names, a.Filename)
	return r.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recordSink{err: boom}, &recordSink{}
	err := Multi{a, b}.Persist(context.Background(), models.Artifact{Filename: "x.pdf"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if len(a.names) != 1 || len(b.names) != 1 {
		t.Errorf("not every sink was called: %v %v", a.names, b.names)
	}
}

func TestArtifactMetadata(t *testing.T) {
	m := artifactMetadata(models.Artifact{Filename: "a.pdf", MimeType: models.MimePDF, Data: []byte("%PDF-"), Size: 99, TooLarge: true})
	if m["size"] != 5 || m["mime_type"] != models.MimePDF || m["too_large"] != true {
		t.Errorf("metadata = %v", m)
	}
}

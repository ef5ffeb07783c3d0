package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pagepress/internal/archive"
	"pagepress/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvPath, "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	data, err := archive.Build([]archive.Entry{
		{Path: "mimetype", Data: []byte("application/epub+zip")},
		{Path: "OEBPS/section-1.xhtml", Data: []byte("<html/>")},
	}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "book.epub")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "mimetype") || !strings.HasSuffix(lines[1], "OEBPS/section-1.xhtml") {
		t.Errorf("output:\n%s", out)
	}
}

func TestInspectRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "inspect", path); err == nil {
		t.Fatal("inspect accepted a non-archive")
	}
}

func TestBuildRequiresInputs(t *testing.T) {
	_, err := execute(t, "build")
	if err == nil || !strings.Contains(err.Error(), "no inputs") {
		t.Fatalf("err = %v", err)
	}
}

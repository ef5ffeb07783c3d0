package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagepress.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
workers:
  image_fetch: 12
classifier:
  strict: true
book:
  title: Weekend reading
delivery:
  enabled: true
  max_attachments: 10
  smtp:
    host: smtp.example.com
    from: me@example.com
    to: [device@kindle.example.com]
log:
  level: debug
  format: json
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers.ImageFetch != 12 || cfg.Workers.Extract != 3 {
		t.Errorf("workers = %+v", cfg.Workers)
	}
	if !cfg.Classifier.Strict || cfg.Classifier.MinScore != 0.5 {
		t.Errorf("classifier = %+v", cfg.Classifier)
	}
	if cfg.Book.Title != "Weekend reading" || cfg.Book.Language != "" {
		t.Errorf("book = %+v", cfg.Book)
	}
	if cfg.Delivery.SMTP.Port != 587 || cfg.Delivery.MaxAttachments != 10 || cfg.Delivery.MaxBatchBytes != 25<<20 {
		t.Errorf("delivery = %+v", cfg.Delivery)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "fetch:\n  timeout: 3\n", "parse config"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"zero workers", "workers:\n  verify: 0\n", "workers"},
		{"delivery without smtp", "delivery:\n  enabled: true\n", "delivery.smtp.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := writeFile(t, "server:\n  addr: \":9999\"\n")
	t.Setenv(EnvPath, path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}

	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing explicit file: err = %v", err)
	}
}

func TestSeconds(t *testing.T) {
	if Seconds(3) != 3*time.Second {
		t.Fatal("Seconds(3)")
	}
}

package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWith(&buf, "warn", "text")
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestJSONFormatWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWith(&buf, "debug", "json").With("stage", "extract")
	l.Debugf("doc %s", "a")
	out := buf.String()
	if !strings.Contains(out, `"stage":"extract"`) || !strings.Contains(out, `"msg":"doc a"`) {
		t.Fatalf("unexpected json output: %q", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Infof("nothing")
	l.With("k", "v").Errorf("still nothing")
}

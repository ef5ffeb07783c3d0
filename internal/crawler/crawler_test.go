
package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchPageHTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("<html><title>x</title></html>"))
	}))
	defer ts.Close()

	client := NewHTTPClient(5*time.Second, 2*time.Second, 1024)
	resp, err := client.FetchPage(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("fetch err: %v", err)
	}
	if resp.URL == "" || resp.ContentType == "" || resp.Elapsed == 0 {
		t.Fatal("unexpected empty values")
	}
	if !strings.Contains(string(resp.Body), "<title>x</title>") {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestFetchPageRejectsNonHTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	client := NewHTTPClient(5*time.Second, 2*time.Second, 1024)
	_, err := client.FetchPage(context.Background(), ts.URL)
	if !errors.Is(err, ErrNotHTML) {
		t.Fatalf("want ErrNotHTML, got %v", err)
	}
}

func TestGetEnforcesSizeCap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer ts.Close()

	client := NewHTTPClient(5*time.Second, 2*time.Second, 1024)
	if _, err := client.Get(context.Background(), ts.URL); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
}

func TestGetRangeAndHead(t *testing.T) {
	var gotRange string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		if r.Method == http.MethodHead {
			return
		}
		gotRange = r.Header.Get("Range")
		// ignore the range on purpose, the client must truncate
		w.Write([]byte("%PDF-1.7\n" + strings.Repeat("x", 4096)))
	}))
	defer ts.Close()

	client := NewHTTPClient(5*time.Second, 2*time.Second, 1024)
	head, err := client.Head(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("head err: %v", err)
	}
	if head.MediaType() != "application/pdf" || len(head.Body) != 0 {
		t.Fatalf("head = %+v", head)
	}

	resp, err := client.GetRange(context.Background(), ts.URL, 16)
	if err != nil {
		t.Fatalf("range err: %v", err)
	}
	if gotRange != "bytes=0-15" {
		t.Errorf("Range header = %q", gotRange)
	}
	if len(resp.Body) != 16 || !strings.HasPrefix(string(resp.Body), "%PDF-") {
		t.Fatalf("range body = %q", resp.Body)
	}
}

func TestStatusError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	client := NewHTTPClient(5*time.Second, 2*time.Second, 1024)
	_, err := client.Get(context.Background(), ts.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("want 404 StatusError, got %v", err)
	}
}

func TestRejectsUnsupportedScheme(t *testing.T) {
	client := NewHTTPClient(time.Second, time.Second, 1024)
	for _, u := range []string{"data:image/png;base64,AAAA", "blob:https://x/1", "not a url"} {
		if _, err := client.Get(context.Background(), u); err == nil {
			t.Errorf("Get(%q) succeeded; want error", u)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pagepress/internal/app"
	"pagepress/internal/config"
	"pagepress/internal/models"
	"pagepress/internal/pipeline"
	"pagepress/pkg/logger"
)

func testServer(t *testing.T) (http.Handler, string) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Output.Dir = t.TempDir()
	deps, err := app.Open(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { deps.Close() })
	return newServer(deps), cfg.Output.Dir
}

func origin(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4 doc"))
		case "/login.pdf":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>sign in</html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := testServer(t)
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	h, _ := testServer(t)

	rec := do(t, h, http.MethodPost, "/classify", `{"url":"https://x.example/y.pdf"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	var got models.Classification
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := models.Classification{IsPDF: true, SourceURL: "https://x.example/y.pdf", Reason: models.ReasonURLExtension}
	if got != want {
		t.Errorf("classification = %+v", got)
	}

	if rec := do(t, h, http.MethodPost, "/classify", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty payload status = %d", rec.Code)
	}
}

func TestBuildEndpoint(t *testing.T) {
	h, dir := testServer(t)
	ts := origin(t)

	body := `{"urls":["` + ts.URL + `/doc.pdf","` + ts.URL + `/login.pdf"]}`
	rec := do(t, h, http.MethodPost, "/build", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Artifacts) != 1 || len(res.Failures) != 1 || res.Failures[0].Stage != models.StagePDF {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, res.Artifacts[0].Filename))
	if err != nil || string(data) != "%PDF-1.4 doc" {
		t.Errorf("persisted artifact = %q, %v", data, err)
	}

	rec = do(t, h, http.MethodPost, "/build", `{"urls":["`+ts.URL+`/login.pdf"]}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "nothing to build") {
		t.Errorf("nothing to build = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/build", `{"urls":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("no urls status = %d", rec.Code)
	}
}

package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pagepress/internal/archive"
	"pagepress/internal/artifact"
	"pagepress/internal/config"
	"pagepress/internal/crawler"
	"pagepress/internal/delivery"
	"pagepress/internal/models"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func site(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paper.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.7 paper"))
		case "/fake.pdf":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>login required</html>"))
		case "/img/a.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html><body><p>article</p></body></html>"))
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

type fakeHost struct {
	sources []models.Source
	docs    map[string]models.Document

	sendErr   func(batch []models.Artifact) error
	persistErr error

	mu        sync.Mutex
	persisted []models.Artifact
	sent      [][]string
}

func (h *fakeHost) List(context.Context) ([]models.Source, error) { return h.sources, nil }

func (h *fakeHost) Page(_ context.Context, src models.Source) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader("<html><body><p>" + src.URL + "</p></body></html>"))
}

func (h *fakeHost) Extract(_ context.Context, src models.Source) (models.Document, error) {
	d, ok := h.docs[src.URL]
	if !ok {
		return models.Document{}, errors.New("extraction failed")
	}
	return d, nil
}

func (h *fakeHost) Persist(_ context.Context, a models.Artifact) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.persistErr != nil {
		return h.persistErr
	}
	h.persisted = append(h.persisted, a)
	return nil
}

func (h *fakeHost) Token(context.Context, bool) (string, error) { return "token", nil }
func (h *fakeHost) Revoke(context.Context, string) error        { return nil }

func (h *fakeHost) Send(_ context.Context, _ string, batch []models.Artifact) error {
	h.mu.Lock()
	var names []string
	for _, a := range batch {
		names = append(names, a.Filename)
	}
	h.sent = append(h.sent, names)
	h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr(batch)
	}
	return nil
}

var runTime = time.Date(2024, 6, 1, 18, 5, 9, 0, time.UTC)

func newRunner(host Host, cfg config.Config) *Runner {
	client := crawler.NewHTTPClient(5*time.Second, 2*time.Second, 1<<20)
	r := New(host, client, cfg, nil)
	r.now = func() time.Time { return runTime }
	return r
}

// mixedHost has two articles (one with an image), one real PDF, one link
// that only looks like a PDF and one article that fails extraction.
func mixedHost(ts *httptest.Server) *fakeHost {
	a1, a2 := ts.URL+"/post/1", ts.URL+"/post/2"
	return &fakeHost{
		sources: []models.Source{
			{ID: "1", URL: a1},
			{ID: "2", URL: ts.URL + "/paper.pdf"},
			{ID: "3", URL: a2},
			{ID: "4", URL: ts.URL + "/fake.pdf"},
			{ID: "5", URL: ts.URL + "/post/broken"},
		},
		docs: map[string]models.Document{
			a1: {
				ID: "1", URL: a1, Title: "First",
				Content: `<p>one</p><p><img src="tok-1" alt=""/></p>`,
				Images:  []models.ImagePlaceholder{{Token: "tok-1", SourceURL: ts.URL + "/img/a.png"}},
			},
			a2: {ID: "2", URL: a2, Title: "Second", Content: `<p>two</p>`},
		},
	}
}

func TestRunBuildsBookAndPDFs(t *testing.T) {
	ts := site(t)
	host := mixedHost(ts)
	res, err := newRunner(host, config.Defaults()).Run(context.Background(), Request{Title: "Weekend"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantReasons := []models.Reason{models.ReasonNotPDF, models.ReasonURLExtension, models.ReasonNotPDF, models.ReasonURLExtension, models.ReasonNotPDF}
	for i, c := range res.Classifications {
		if c.Reason != wantReasons[i] {
			t.Errorf("classification %d = %+v, want %s", i, c, wantReasons[i])
		}
	}

	if len(res.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
	book, pdf := res.Artifacts[0], res.Artifacts[1]
	if book.MimeType != models.MimeEPUB || book.Filename != "2024-06-01T18_05_09 127.0.0.1.epub" {
		t.Errorf("book = %s %s", book.MimeType, book.Filename)
	}
	if pdf.MimeType != models.MimePDF || pdf.Filename != "2024-06-01T18_05_09 127.0.0.1 paper.pdf" || string(pdf.Data) != "%PDF-1.7 paper" {
		t.Errorf("pdf = %s %s %q", pdf.MimeType, pdf.Filename, pdf.Data)
	}

	entries, err := archive.ReadEntries(book.Data)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	files := map[string]string{}
	for _, e := range entries {
		files[e.Path] = string(e.Data)
	}
	if files["OEBPS/images/image-1.png"] != string(pngBytes) {
		t.Error("image asset missing from book")
	}
	if !strings.Contains(files["OEBPS/section-1.xhtml"], `src="images/image-1.png"`) {
		t.Errorf("section 1 does not reference the asset:\n%s", files["OEBPS/section-1.xhtml"])
	}
	if !strings.Contains(files["OEBPS/content.opf"], "<dc:title>Weekend</dc:title>") {
		t.Error("book title not applied")
	}

	stages := map[string]string{}
	for _, f := range res.Failures {
		stages[f.Stage] = f.URL
	}
	if len(res.Failures) != 2 || stages[models.StagePDF] != ts.URL+"/fake.pdf" || stages[models.StageExtract] != ts.URL+"/post/broken" {
		t.Errorf("failures = %+v", res.Failures)
	}

	if len(host.persisted) != 2 || len(host.sent) != 0 || res.Delivery != nil {
		t.Errorf("persisted %d, sent %d batches", len(host.persisted), len(host.sent))
	}
}

func TestRunNothingToBuild(t *testing.T) {
	ts := site(t)
	host := &fakeHost{sources: []models.Source{
		{ID: "1", URL: ts.URL + "/post/1"},
		{ID: "2", URL: ts.URL + "/fake.pdf"},
	}}
	res, err := newRunner(host, config.Defaults()).Run(context.Background(), Request{})
	if !errors.Is(err, ErrNothingToBuild) {
		t.Fatalf("err = %v", err)
	}
	if res == nil || len(res.Failures) != 2 || len(host.persisted) != 0 {
		t.Fatalf("res = %+v, persisted = %d", res, len(host.persisted))
	}

	empty := &fakeHost{}
	if _, err := newRunner(empty, config.Defaults()).Run(context.Background(), Request{}); !errors.Is(err, ErrNothingToBuild) {
		t.Fatalf("no sources: err = %v", err)
	}
}

func TestRunDeliveryFlagsOversizedAndStillPersists(t *testing.T) {
	ts := site(t)
	host := mixedHost(ts)
	host.sendErr = func(batch []models.Artifact) error {
		if batch[0].MimeType == models.MimeEPUB {
			return delivery.ErrSizeLimit
		}
		return nil
	}
	cfg := config.Defaults()
	cfg.Delivery.MaxAttachments = 1

	res, err := newRunner(host, cfg).Run(context.Background(), Request{Deliver: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Delivery == nil || res.Delivery.Batches != 2 || len(res.Delivery.Sent) != 1 || res.Delivery.Sent[0] != 1 {
		t.Fatalf("delivery = %+v", res.Delivery)
	}
	book := res.Artifacts[0]
	if !book.TooLarge || !strings.HasPrefix(book.Filename, artifact.TooLargePrefix) {
		t.Errorf("book not flagged: %+v", book.Filename)
	}
	if len(host.persisted) != 2 || host.persisted[0].Filename != book.Filename {
		t.Errorf("persisted = %d, first %q", len(host.persisted), host.persisted[0].Filename)
	}
}

func TestRunWithoutTransportWarns(t *testing.T) {
	ts := site(t)
	fh := mixedHost(ts)
	host := NewHost(fh, fh, nil, nil)

	res, err := newRunner(host, config.Defaults()).Run(context.Background(), Request{Deliver: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "no credential") {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if len(fh.persisted) != 2 {
		t.Errorf("persisted = %d", len(fh.persisted))
	}
}

func TestRunRecordsPersistFailures(t *testing.T) {
	ts := site(t)
	host := mixedHost(ts)
	host.persistErr = errors.New("disk full")

	res, err := newRunner(host, config.Defaults()).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := countStage(res.Failures, models.StagePersist); n != 2 {
		t.Errorf("persist failures = %d, want 2", n)
	}
}

func countStage(failures []models.Failure, stage string) int {
	n := 0
	for _, f := range failures {
		if f.Stage == stage {
			n++
		}
	}
	return n
}

func TestRunRecordsDeliveryFailures(t *testing.T) {
	ts := site(t)
	host := mixedHost(ts)
	host.sendErr = func(batch []models.Artifact) error {
		if batch[0].MimeType == models.MimePDF {
			return errors.New("connection reset")
		}
		return nil
	}
	cfg := config.Defaults()
	cfg.Delivery.MaxAttachments = 1

	res, err := newRunner(host, cfg).Run(context.Background(), Request{Deliver: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if countStage(res.Failures, models.StageDeliver) != 1 {
		t.Fatalf("failures = %+v", res.Failures)
	}
	for _, f := range res.Failures {
		if f.Stage == models.StageDeliver && f.URL != res.Artifacts[1].Filename {
			t.Errorf("deliver failure names %q, want %q", f.URL, res.Artifacts[1].Filename)
		}
	}
	if len(host.persisted) != 2 {
		t.Errorf("persisted = %d", len(host.persisted))
	}
}

// panickyPageHost fails every page load by panicking.
type panickyPageHost struct {
	*fakeHost
}

func (panickyPageHost) Page(context.Context, models.Source) (*goquery.Document, error) {
	panic("renderer crashed")
}

func TestRunRecordsClassifyFailures(t *testing.T) {
	ts := site(t)
	fh := mixedHost(ts)

	res, err := newRunner(panickyPageHost{fh}, config.Defaults()).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := countStage(res.Failures, models.StageClassify); got != 3 {
		t.Errorf("classify failures = %d, want 3: %+v", got, res.Failures)
	}
	if len(res.Artifacts) != 2 || res.Artifacts[0].MimeType != models.MimeEPUB {
		t.Errorf("artifacts = %d", len(res.Artifacts))
	}
}

func TestClassifyKeepsInputOrder(t *testing.T) {
	ts := site(t)
	srcs := []models.Source{
		{URL: ts.URL + "/a"},
		{URL: ts.URL + "/b.pdf"},
		{URL: "https://docs.google.com/viewer?url=" + ts.URL + "/c.pdf"},
	}
	got := newRunner(&fakeHost{}, config.Defaults()).Classify(context.Background(), srcs)
	want := []models.Reason{models.ReasonNotPDF, models.ReasonURLExtension, models.ReasonViewerSrc}
	for i := range want {
		if got[i].Reason != want[i] {
			t.Errorf("classification %d = %+v", i, got[i])
		}
	}
	if got[2].SourceURL != ts.URL+"/c.pdf" {
		t.Errorf("viewer source = %q", got[2].SourceURL)
	}
}

// Package pipeline turns a set of sources into artifacts: one EPUB for all
// articles and one file per PDF, optionally delivered by mail and always
// handed to the sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pagepress/internal/artifact"
	"pagepress/internal/classifier"
	"pagepress/internal/config"
	"pagepress/internal/delivery"
	"pagepress/internal/epub"
	"pagepress/internal/images"
	"pagepress/internal/metrics"
	"pagepress/internal/models"
	"pagepress/internal/pool"
	"pagepress/pkg/logger"
)

// ErrNothingToBuild is returned when no article and no PDF survived.
var ErrNothingToBuild = errors.New("pipeline: nothing to build")

type Request struct {
	// Title names a multi-article book; empty uses the configured title or
	// a dated collection title.
	Title   string
	Deliver bool
}

type Result struct {
	Classifications []models.Classification `json:"classifications"`
	Artifacts       []models.Artifact       `json:"artifacts"`
	Failures        []models.Failure        `json:"failures,omitempty"`
	Delivery        *delivery.Report        `json:"delivery,omitempty"`
	Warnings        []string                `json:"warnings,omitempty"`
}

type Runner struct {
	host       Host
	net        Network
	cfg        config.Config
	classifier *classifier.Classifier
	log        *logger.Logger
	now        func() time.Time
}

func New(host Host, net Network, cfg config.Config, log *logger.Logger) *Runner {
	opts := classifier.Options{
		Workers:         cfg.Workers.Verify,
		MinScore:        cfg.Classifier.MinScore,
		MaxCandidates:   cfg.Classifier.MaxCandidates,
		ScriptScanLimit: cfg.Classifier.ScriptScanLimit,
		ProbeBytes:      cfg.Classifier.ProbeBytes,
		Strict:          cfg.Classifier.Strict,
	}
	return &Runner{
		host:       host,
		net:        net,
		cfg:        cfg,
		classifier: classifier.New(net, opts, log),
		log:        log,
		now:        time.Now,
	}
}

// Classify decides article or PDF for every source, in input order.
func (r *Runner) Classify(ctx context.Context, sources []models.Source) []models.Classification {
	out, _ := r.classify(ctx, sources)
	return out
}

// classify falls back to "not a PDF" for a source whose classification
// failed and reports that as a classify failure.
func (r *Runner) classify(ctx context.Context, sources []models.Source) ([]models.Classification, []models.Failure) {
	defer observe("classify", time.Now())
	results := pool.Map(ctx, sources, r.cfg.Workers.Classify, func(ctx context.Context, _ int, src models.Source) (models.Classification, error) {
		in := classifier.Input{URL: src.URL, PendingURL: src.PendingURL, Title: src.Title}
		return r.classifier.ResolveFunc(ctx, in, func(ctx context.Context) (*goquery.Document, error) {
			return r.host.Page(ctx, src)
		}), nil
	})
	out := make([]models.Classification, len(sources))
	var failures []models.Failure
	for i, res := range results {
		if res.Err != nil {
			r.log.Warnf("classify %s: %v", sources[i].URL, res.Err)
			out[i] = models.Classification{SourceURL: sources[i].URL, Reason: models.ReasonNotPDF}
			failures = append(failures, models.Failure{ID: sources[i].ID, URL: sources[i].URL, Stage: models.StageClassify, Error: res.Err.Error()})
		} else {
			out[i] = res.Value
		}
		metrics.RecordClassification(string(out[i].Reason))
	}
	return out, failures
}

// Run executes one invocation. On ErrNothingToBuild the returned Result
// still carries the classifications and failures.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	sources, err := r.host.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list sources: %w", err)
	}
	res := &Result{}
	if len(sources) == 0 {
		return res, ErrNothingToBuild
	}
	ts := r.now()

	var failures []models.Failure
	res.Classifications, failures = r.classify(ctx, sources)
	res.Failures = append(res.Failures, failures...)
	var articles, pdfs []int
	for i, c := range res.Classifications {
		if c.IsPDF {
			pdfs = append(pdfs, i)
		} else {
			articles = append(articles, i)
		}
	}
	r.log.Infof("pipeline: %d sources: %d articles, %d pdfs", len(sources), len(articles), len(pdfs))

	namer := artifact.NewNamer()
	book, failures := r.buildBook(ctx, sources, articles, req, ts)
	res.Failures = append(res.Failures, failures...)
	if book != nil {
		book.Filename = namer.Unique(book.Filename)
		res.Artifacts = append(res.Artifacts, *book)
	}

	files, failures := r.fetchPDFs(ctx, sources, res.Classifications, pdfs, ts)
	res.Failures = append(res.Failures, failures...)
	for _, f := range files {
		f.Filename = namer.Unique(f.Filename)
		res.Artifacts = append(res.Artifacts, f)
	}

	if len(res.Artifacts) == 0 {
		return res, ErrNothingToBuild
	}

	if req.Deliver {
		rep := r.deliver(ctx, res.Artifacts)
		res.Delivery = &rep
		res.Warnings = append(res.Warnings, rep.Warnings...)
		for _, i := range rep.Failed {
			a := res.Artifacts[i]
			res.Failures = append(res.Failures, models.Failure{URL: a.Filename, Stage: models.StageDeliver, Error: "not delivered"})
		}
		res.Artifacts = artifact.FlagTooLarge(res.Artifacts, rep.TooLarge)
	}

	r.persist(ctx, res)
	return res, nil
}

func (r *Runner) buildBook(ctx context.Context, sources []models.Source, idx []int, req Request, ts time.Time) (*models.Artifact, []models.Failure) {
	if len(idx) == 0 {
		return nil, nil
	}
	start := time.Now()
	var failures []models.Failure
	results := pool.Map(ctx, idx, r.cfg.Workers.Extract, func(ctx context.Context, _ int, i int) (models.Document, error) {
		return r.host.Extract(ctx, sources[i])
	})
	var docs []models.Document
	for j, out := range results {
		src := sources[idx[j]]
		if out.Err != nil {
			metrics.RecordDocument("article", "failed")
			r.log.Warnf("extract %s: %v", src.URL, out.Err)
			failures = append(failures, models.Failure{ID: src.ID, URL: src.URL, Stage: models.StageExtract, Error: out.Err.Error()})
			continue
		}
		doc := out.Value
		if doc.ID == "" {
			doc.ID = src.ID
		}
		if doc.URL == "" {
			doc.URL = src.URL
		}
		metrics.RecordDocument("article", "ok")
		docs = append(docs, doc)
	}
	observe("extract", start)
	if len(docs) == 0 {
		return nil, failures
	}

	start = time.Now()
	docs, assets, imgFailures := images.New(r.net, r.cfg.Workers.ImageFetch, r.log).Embed(ctx, docs)
	failures = append(failures, imgFailures...)
	observe("images", start)

	title := req.Title
	if title == "" {
		title = r.cfg.Book.Title
	}
	book, err := epub.Build(docs, assets, epub.Options{
		Title:      title,
		Identifier: r.cfg.Book.Identifier,
		Language:   r.cfg.Book.Language,
		Author:     r.cfg.Book.Author,
		Modified:   ts,
	})
	if err != nil {
		r.log.Errorf("build book: %v", err)
		for _, d := range docs {
			failures = append(failures, models.Failure{ID: d.ID, URL: d.URL, Stage: models.StageExtract, Error: err.Error()})
		}
		return nil, failures
	}

	urls := make([]string, len(docs))
	for i, d := range docs {
		urls[i] = d.URL
	}
	r.log.Infof("pipeline: book %q: %d sections, %d images, %d bytes", book.Title, len(docs), len(assets), len(book.Data))
	return &models.Artifact{
		Filename:   artifact.BookFilename(ts, urls),
		MimeType:   models.MimeEPUB,
		Data:       book.Data,
		Size:       len(book.Data),
		SourceURLs: urls,
	}, failures
}

func (r *Runner) deliver(ctx context.Context, artifacts []models.Artifact) delivery.Report {
	defer observe("deliver", time.Now())
	d := r.cfg.Delivery
	return delivery.NewSender(r.host, r.host, d.MaxAttachments, d.MaxBatchBytes, r.log).Deliver(ctx, artifacts)
}

// persist hands every artifact to the sink, regardless of delivery.
func (r *Runner) persist(ctx context.Context, res *Result) {
	defer observe("persist", time.Now())
	for _, a := range res.Artifacts {
		if err := r.host.Persist(ctx, a); err != nil {
			r.log.Errorf("persist %s: %v", a.Filename, err)
			res.Failures = append(res.Failures, models.Failure{URL: a.Filename, Stage: models.StagePersist, Error: err.Error()})
			continue
		}
		metrics.RecordArtifact(a.MimeType, a.Size)
	}
}

func observe(stage string, start time.Time) {
	metrics.ObserveStage(stage, time.Since(start).Seconds())
}

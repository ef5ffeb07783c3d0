package pipeline

import (
	"context"
	"fmt"
	"time"

	"pagepress/internal/artifact"
	"pagepress/internal/classifier"
	"pagepress/internal/metrics"
	"pagepress/internal/models"
	"pagepress/internal/pool"
)

// fetchPDFs downloads the classified PDFs at idx and keeps those whose
// bytes carry the PDF signature.
func (r *Runner) fetchPDFs(ctx context.Context, sources []models.Source, cls []models.Classification, idx []int, ts time.Time) ([]models.Artifact, []models.Failure) {
	if len(idx) == 0 {
		return nil, nil
	}
	defer observe("pdf", time.Now())

	results := pool.Map(ctx, idx, r.cfg.Workers.PDFFetch, func(ctx context.Context, _ int, i int) ([]byte, error) {
		resp, err := r.net.Get(ctx, cls[i].SourceURL)
		if err != nil {
			return nil, err
		}
		if !classifier.HasPDFMagic(resp.Body) {
			return nil, fmt.Errorf("not a PDF (content type %q)", resp.ContentType)
		}
		return resp.Body, nil
	})

	var (
		files    []models.Artifact
		failures []models.Failure
	)
	for j, out := range results {
		src, c := sources[idx[j]], cls[idx[j]]
		if out.Err != nil {
			metrics.RecordDocument("pdf", "failed")
			r.log.Warnf("pdf %s: %v", c.SourceURL, out.Err)
			failures = append(failures, models.Failure{ID: src.ID, URL: c.SourceURL, Stage: models.StagePDF, Error: out.Err.Error()})
			continue
		}
		metrics.RecordDocument("pdf", "ok")
		urls := []string{src.URL}
		if c.SourceURL != src.URL {
			urls = append(urls, c.SourceURL)
		}
		files = append(files, models.Artifact{
			Filename:   artifact.PDFFilename(ts, c.SourceURL, src.Title),
			MimeType:   models.MimePDF,
			Data:       out.Value,
			Size:       len(out.Value),
			SourceURLs: urls,
		})
	}
	return files, failures
}

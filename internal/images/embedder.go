// Package images downloads the images referenced by sanitized documents
// and turns them into archive assets.
package images

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"pagepress/internal/crawler"
	"pagepress/internal/metrics"
	"pagepress/internal/models"
	"pagepress/internal/pool"
	"pagepress/pkg/logger"
)

// Fetcher is the HTTP GET primitive used for image downloads.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*crawler.Response, error)
}

type Embedder struct {
	fetch   Fetcher
	workers int
	log     *logger.Logger
}

func New(fetch Fetcher, workers int, log *logger.Logger) *Embedder {
	if workers < 1 {
		workers = 1
	}
	return &Embedder{fetch: fetch, workers: workers, log: log}
}

const (
	assetDir  = "OEBPS/"
	imagesDir = "images/"
)

type placeholderRef struct {
	doc int
	ph  models.ImagePlaceholder
}

// Embed fetches every distinct image once and rewrites each placeholder
// token to the asset href, or to the empty string when the image could
// not be embedded. Assets are numbered in first-encountered order across
// docs. The input documents are not modified.
func (e *Embedder) Embed(ctx context.Context, docs []models.Document) ([]models.Document, []models.Asset, []models.Failure) {
	var refs []placeholderRef
	for i, d := range docs {
		for _, ph := range d.Images {
			refs = append(refs, placeholderRef{doc: i, ph: ph})
		}
	}

	cache := newFetchCache(e.fetch)
	results := pool.Map(ctx, refs, e.workers, func(ctx context.Context, _ int, r placeholderRef) (fetched, error) {
		f := cache.get(ctx, r.ph.SourceURL)
		return f, f.err
	})

	var (
		assets   []models.Asset
		failures []models.Failure
		hrefs    = map[string]string{}
	)
	replacements := make([][]string, len(docs))
	for i, r := range refs {
		res := results[i]
		src := r.ph.SourceURL
		href, seen := hrefs[src]
		if !seen && res.Err == nil {
			n := len(assets) + 1
			href = fmt.Sprintf("%simage-%d.%s", imagesDir, n, res.Value.ext)
			assets = append(assets, models.Asset{
				ArchivePath: assetDir + href,
				Href:        href,
				MediaType:   res.Value.mediaType,
				SourceURL:   src,
				Data:        res.Value.data,
			})
			hrefs[src] = href
		}
		if res.Err != nil {
			metrics.RecordImage("failed")
			e.log.Debugf("image %s: %v", src, res.Err)
			failures = append(failures, models.Failure{
				ID:    docs[r.doc].ID,
				URL:   src,
				Stage: models.StageImage,
				Error: res.Err.Error(),
			})
		} else {
			metrics.RecordImage("embedded")
		}
		replacements[r.doc] = append(replacements[r.doc], `src="`+r.ph.Token+`"`, `src="`+href+`"`)
	}

	out := make([]models.Document, len(docs))
	for i, d := range docs {
		d.Images = nil
		if len(replacements[i]) > 0 {
			d.Content = strings.NewReplacer(replacements[i]...).Replace(d.Content)
		}
		out[i] = d
	}
	return out, assets, failures
}

type fetched struct {
	mediaType string
	ext       string
	data      []byte
	err       error
}

// fetchCache remembers one download result per URL string for the
// lifetime of a single Embed call. Concurrent requests for the same URL
// share one network fetch.
type fetchCache struct {
	fetch Fetcher
	group singleflight.Group

	mu   sync.Mutex
	done map[string]fetched
}

func newFetchCache(fetch Fetcher) *fetchCache {
	return &fetchCache{fetch: fetch, done: map[string]fetched{}}
}

func (c *fetchCache) get(ctx context.Context, rawURL string) fetched {
	c.mu.Lock()
	f, ok := c.done[rawURL]
	c.mu.Unlock()
	if ok {
		return f
	}
	v, _, _ := c.group.Do(rawURL, func() (any, error) {
		f := c.load(ctx, rawURL)
		c.mu.Lock()
		c.done[rawURL] = f
		c.mu.Unlock()
		return f, nil
	})
	return v.(fetched)
}

func (c *fetchCache) load(ctx context.Context, rawURL string) fetched {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fetched{err: fmt.Errorf("images: unsupported source %q", truncate(rawURL, 64))}
	}
	if c.fetch == nil {
		return fetched{err: fmt.Errorf("images: no fetcher configured")}
	}
	resp, err := c.fetch.Get(ctx, rawURL)
	if err != nil {
		return fetched{err: fmt.Errorf("images: fetch: %w", err)}
	}
	mt, ext, ok := Resolve(resp.ContentType, rawURL)
	if !ok {
		return fetched{err: fmt.Errorf("images: unsupported type %q", resp.ContentType)}
	}
	if len(resp.Body) == 0 {
		return fetched{err: fmt.Errorf("images: empty body")}
	}
	return fetched{mediaType: mt, ext: ext, data: resp.Body}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"pagepress/internal/crawler"
	"pagepress/internal/models"
	"pagepress/internal/sanitizer"
	"pagepress/pkg/logger"
)

// ErrNoContent is returned when nothing readable survives sanitization.
var ErrNoContent = errors.New("parser: no readable content")

// PageFetcher downloads HTML pages.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (*crawler.Response, error)
}

// WebSource serves a fixed list of sources by fetching them over HTTP.
// Pages are fetched at most once per source URL and shared between
// classification and extraction.
type WebSource struct {
	fetch   PageFetcher
	parser  *Parser
	san     *sanitizer.Sanitizer
	sources []models.Source
	log     *logger.Logger

	mu    sync.Mutex
	pages map[string]*fetchedPage
}

type fetchedPage struct {
	url  *url.URL
	body []byte
}

func NewWebSource(fetch PageFetcher, sources []models.Source, log *logger.Logger) *WebSource {
	return &WebSource{
		fetch:   fetch,
		parser:  New(),
		san:     sanitizer.New(),
		sources: sources,
		log:     log,
		pages:   map[string]*fetchedPage{},
	}
}

func (w *WebSource) List(_ context.Context) ([]models.Source, error) {
	out := make([]models.Source, len(w.sources))
	copy(out, w.sources)
	return out, nil
}

// Page returns a fresh DOM of the source's page.
func (w *WebSource) Page(ctx context.Context, src models.Source) (*goquery.Document, error) {
	p, err := w.load(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	doc.Url = p.url
	return doc, nil
}

// Extract runs readability over the page and sanitizes the result. When
// readability fails, the sanitizer falls back to the page's main element.
// Extraction is the last use of a page, so its cached body is released.
func (w *WebSource) Extract(ctx context.Context, src models.Source) (models.Document, error) {
	p, err := w.load(ctx, src.URL)
	if err != nil {
		return models.Document{}, err
	}
	w.forget(src.URL)
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return models.Document{}, fmt.Errorf("parser: %w", err)
	}

	var ex *sanitizer.Extracted
	article, err := readability.FromReader(bytes.NewReader(p.body), p.url)
	if err != nil {
		w.log.Debugf("parser: readability failed for %s: %v", src.URL, err)
	} else {
		ex = &sanitizer.Extracted{
			Title:    article.Title,
			Byline:   article.Byline,
			Excerpt:  article.Excerpt,
			SiteName: article.SiteName,
			Content:  article.Content,
		}
	}

	res, err := w.san.Sanitize(page, p.url, ex)
	if err != nil {
		return models.Document{}, err
	}
	if strings.TrimSpace(res.Content) == "" {
		return models.Document{}, fmt.Errorf("%w: %s", ErrNoContent, src.URL)
	}
	return models.Document{
		ID:       src.ID,
		URL:      src.URL,
		Title:    firstNonEmpty(res.Title, src.Title),
		Byline:   res.Byline,
		Excerpt:  res.Excerpt,
		SiteName: res.SiteName,
		Lang:     res.Lang,
		Content:  res.Content,
		Images:   res.Images,
	}, nil
}

func (w *WebSource) forget(rawURL string) {
	w.mu.Lock()
	delete(w.pages, rawURL)
	w.mu.Unlock()
}

func (w *WebSource) load(ctx context.Context, rawURL string) (*fetchedPage, error) {
	w.mu.Lock()
	p, ok := w.pages[rawURL]
	w.mu.Unlock()
	if ok {
		return p, nil
	}

	resp, err := w.fetch.FetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	body, err := w.parser.Decode(resp.Body, resp.ContentType)
	if err != nil {
		return nil, err
	}
	final, err := url.Parse(resp.URL)
	if err != nil || final.Host == "" {
		final, err = url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parser: invalid url %q: %w", rawURL, err)
		}
	}
	p = &fetchedPage{url: final, body: body}

	w.mu.Lock()
	w.pages[rawURL] = p
	w.mu.Unlock()
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

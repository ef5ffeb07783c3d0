package classifier

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pagepress/internal/models"
	"pagepress/internal/pool"
)

// Candidate scores. Embedded viewers and citation metadata are the most
// reliable, bare anchors and string literals the least.
const (
	scoreEmbedTyped   = 0.95
	scoreCitationMeta = 0.95
	scoreEmbed        = 0.9
	scoreViewerFrame  = 0.9
	scoreDomainRule   = 0.85
	scoreLinkTyped    = 0.8
	scoreScriptFetch  = 0.75
	scoreSource       = 0.7
	scoreAnchorHinted = 0.65
	scoreMeta         = 0.6
	scoreAnchor       = 0.55
	scoreLiteral      = 0.5
)

var (
	fetchCallRe  = regexp.MustCompile(`(?i)fetch\(\s*["'` + "`" + `]([^"'` + "`" + `\s]+?\.pdf(?:[?#][^"'` + "`" + `\s]*)?)["'` + "`" + `]`)
	pdfLiteralRe = regexp.MustCompile(`(?i)["']((?:https?:)?[^"'\s<>()]*?\.pdf(?:\?[^"'\s<>()]*)?)["']`)
	anchorHintRe = regexp.MustCompile(`(?i)\b(pdf|download|full text)\b`)

	arxivAbsRe   = regexp.MustCompile(`^/abs/([^?#]+?)/?$`)
	biorxivDocRe = regexp.MustCompile(`^/content/(10\.\d{4,9}/[^?#]+?)(?:\.full|\.abstract)?/?$`)
)

// Discover scans a rendered wrapper page for URLs that may serve the PDF
// it presents. Results are deduplicated, ordered by descending score and
// filtered to the configured minimum.
func (c *Classifier) Discover(page *goquery.Document, pageURL *url.URL) []models.PDFCandidate {
	if page == nil {
		return nil
	}
	d := &discovery{base: pageURL, seen: map[string]int{}}
	if pageURL != nil {
		d.self = pageURL.String()
	}

	page.Find("embed[src], object[data], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		raw := s.AttrOr("src", s.AttrOr("data", ""))
		typed := isPDFType(strings.ToLower(strings.TrimSpace(s.AttrOr("type", ""))))
		abs := d.resolve(raw)
		switch {
		case abs == "":
		case typed:
			d.add(abs, scoreEmbedTyped, "embed-type")
		case viewerSource(abs) != "":
			d.add(viewerSource(abs), scoreViewerFrame, "embed-viewer")
		case looksLikePDF(abs):
			d.add(abs, scoreEmbed, "embed")
		}
	})
	page.Find("source[src]").Each(func(_ int, s *goquery.Selection) {
		abs := d.resolve(s.AttrOr("src", ""))
		if abs != "" && (looksLikePDF(abs) || isPDFType(s.AttrOr("type", ""))) {
			d.add(abs, scoreSource, "source")
		}
	})
	page.Find(`link[href]`).Each(func(_ int, s *goquery.Selection) {
		if isPDFType(strings.ToLower(s.AttrOr("type", ""))) {
			d.add(d.resolve(s.AttrOr("href", "")), scoreLinkTyped, "link-type")
		}
	})
	page.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(s.AttrOr("name", s.AttrOr("property", "")))
		content := s.AttrOr("content", "")
		switch {
		case name == "citation_pdf_url" || name == "eprints.document_url":
			d.add(d.resolve(content), scoreCitationMeta, "citation-meta")
		case looksLikePDF(content):
			d.add(d.resolve(content), scoreMeta, "meta")
		}
	})
	page.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		abs := d.resolve(s.AttrOr("href", ""))
		if abs == "" {
			return
		}
		if src := viewerSource(abs); src != "" {
			d.add(src, scoreAnchorHinted, "anchor-viewer")
			return
		}
		if !looksLikePDF(abs) {
			return
		}
		_, download := s.Attr("download")
		if download || anchorHintRe.MatchString(s.Text()) || isPDFType(s.AttrOr("type", "")) {
			d.add(abs, scoreAnchorHinted, "anchor")
			return
		}
		d.add(abs, scoreAnchor, "anchor")
	})

	budget := c.opts.ScriptScanLimit
	page.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, external := s.Attr("src"); external {
			return true
		}
		text := s.Text()
		if len(text) > budget {
			text = text[:budget]
		}
		budget -= len(text)
		for _, m := range fetchCallRe.FindAllStringSubmatch(text, -1) {
			d.add(d.resolve(m[1]), scoreScriptFetch, "script-fetch")
		}
		for _, m := range pdfLiteralRe.FindAllStringSubmatch(text, -1) {
			d.add(d.resolve(m[1]), scoreLiteral, "script-literal")
		}
		return budget > 0
	})

	if pageURL != nil {
		for _, cand := range domainCandidates(pageURL) {
			d.add(cand, scoreDomainRule, "domain-rule")
		}
	}

	out := d.list
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	kept := out[:0]
	for _, cand := range out {
		if cand.Score >= c.opts.MinScore {
			kept = append(kept, cand)
		}
	}
	if len(kept) > c.opts.MaxCandidates {
		kept = kept[:c.opts.MaxCandidates]
	}
	return kept
}

// Verify probes candidates concurrently and returns the highest-ranked one
// that is confirmed to be a PDF. Candidates must already be in rank order.
func (c *Classifier) Verify(ctx context.Context, candidates []models.PDFCandidate) (models.Classification, bool) {
	type probed struct {
		reason models.Reason
		ok     bool
	}
	results := pool.Map(ctx, candidates, c.opts.Workers, func(ctx context.Context, _ int, cand models.PDFCandidate) (probed, error) {
		reason, ok := c.verify(ctx, cand.URL)
		return probed{reason: reason, ok: ok}, nil
	})
	for i, r := range results {
		if r.Err == nil && r.Value.ok {
			return models.Classification{IsPDF: true, SourceURL: candidates[i].URL, Reason: r.Value.reason}, true
		}
	}
	return models.Classification{}, false
}

// PageFunc loads the rendered page of an input for wrapper discovery.
type PageFunc func(ctx context.Context) (*goquery.Document, error)

// Resolve classifies in and, when it is not directly a PDF, looks for a
// verified PDF behind the rendered page.
func (c *Classifier) Resolve(ctx context.Context, in Input, page *goquery.Document) models.Classification {
	return c.ResolveFunc(ctx, in, func(context.Context) (*goquery.Document, error) { return page, nil })
}

// ResolveFunc is Resolve with a page that is only loaded when the direct
// checks did not already find a PDF.
func (c *Classifier) ResolveFunc(ctx context.Context, in Input, load PageFunc) models.Classification {
	classify := c.Classify
	if c.opts.Strict {
		classify = c.ClassifyVerified
	}
	cls := classify(ctx, in)
	if cls.IsPDF || load == nil {
		return cls
	}
	page, err := load(ctx)
	if err != nil {
		c.log.Debugf("classifier: %s: page unavailable for discovery: %v", in.URL, err)
		return cls
	}
	if page == nil {
		return cls
	}
	base, err := url.Parse(in.URL)
	if err != nil {
		base = nil
	}
	cands := c.Discover(page, base)
	if len(cands) == 0 {
		return cls
	}
	c.log.Debugf("classifier: %s: verifying %d candidates", in.URL, len(cands))
	if v, ok := c.Verify(ctx, cands); ok {
		return v
	}
	return cls
}

type discovery struct {
	base *url.URL
	self string
	seen map[string]int
	list []models.PDFCandidate
}

func (d *discovery) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if d.base != nil {
		u = d.base.ResolveReference(u)
	}
	u.Fragment = ""
	s := u.String()
	if !isHTTP(s) {
		return ""
	}
	return s
}

// add records a candidate, keeping the highest score per URL.
func (d *discovery) add(rawURL string, score float64, origin string) {
	if rawURL == "" || rawURL == d.self {
		return
	}
	if i, ok := d.seen[rawURL]; ok {
		if score > d.list[i].Score {
			d.list[i].Score = score
			d.list[i].Origin = origin
		}
		return
	}
	d.seen[rawURL] = len(d.list)
	d.list = append(d.list, models.PDFCandidate{URL: rawURL, Score: score, Origin: origin})
}

func looksLikePDF(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if hasPDFExtension(u.String()) {
		return true
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if seg == "pdf" {
			return true
		}
	}
	return false
}

// domainCandidates synthesizes PDF URLs for sites with a known layout.
func domainCandidates(u *url.URL) []string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "arxiv.org" || host == "export.arxiv.org":
		if m := arxivAbsRe.FindStringSubmatch(u.Path); m != nil {
			return []string{"https://arxiv.org/pdf/" + m[1]}
		}
	case host == "openreview.net":
		if id := u.Query().Get("id"); id != "" && (u.Path == "/forum" || u.Path == "/attachment") {
			return []string{"https://openreview.net/pdf?id=" + url.QueryEscape(id)}
		}
	case host == "biorxiv.org" || host == "medrxiv.org":
		if m := biorxivDocRe.FindStringSubmatch(u.Path); m != nil {
			return []string{"https://www." + host + "/content/" + m[1] + ".full.pdf"}
		}
	}
	return nil
}

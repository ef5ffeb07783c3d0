
package classifier

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"strings"

	"pagepress/internal/crawler"
	"pagepress/internal/models"
	"pagepress/pkg/logger"
)

// Prober issues the cheap network checks used to confirm a PDF.
type Prober interface {
	Head(ctx context.Context, rawURL string) (*crawler.Response, error)
	GetRange(ctx context.Context, rawURL string, n int64) (*crawler.Response, error)
}

type Options struct {
	// Workers bounds concurrent candidate verification.
	Workers int
	// MinScore drops discovered candidates below this confidence.
	MinScore float64
	// MaxCandidates caps how many discovered candidates are verified.
	MaxCandidates int
	// ScriptScanLimit bounds how much inline script text is scanned.
	ScriptScanLimit int
	// ProbeBytes is the size of the ranged GET used for sniffing.
	ProbeBytes int64
	// Strict makes Resolve use ClassifyVerified.
	Strict bool
}

func DefaultOptions() Options {
	return Options{
		Workers:         3,
		MinScore:        0.5,
		MaxCandidates:   6,
		ScriptScanLimit: 200_000,
		ProbeBytes:      1024,
	}
}

// Input is one document to classify. PendingURL is a navigation still in
// flight and wins over URL when set.
type Input struct {
	URL        string
	PendingURL string
	Title      string
}

type Classifier struct {
	probe Prober
	opts  Options
	log   *logger.Logger
}

func New(probe Prober, opts Options, log *logger.Logger) *Classifier {
	def := DefaultOptions()
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if opts.MaxCandidates < 1 {
		opts.MaxCandidates = def.MaxCandidates
	}
	if opts.ScriptScanLimit < 1 {
		opts.ScriptScanLimit = def.ScriptScanLimit
	}
	if opts.ProbeBytes < 5 {
		opts.ProbeBytes = def.ProbeBytes
	}
	return &Classifier{probe: probe, opts: opts, log: log}
}

// Classify decides whether in points at a PDF. URLs ending in .pdf and
// known viewer wrappers are trusted without a network call.
func (c *Classifier) Classify(ctx context.Context, in Input) models.Classification {
	return c.classify(ctx, in, false)
}

// ClassifyVerified is Classify without the optimistic shortcuts: every
// answer is backed by a live content-type or magic-bytes check.
func (c *Classifier) ClassifyVerified(ctx context.Context, in Input) models.Classification {
	return c.classify(ctx, in, true)
}

func (c *Classifier) classify(ctx context.Context, in Input, verified bool) models.Classification {
	for _, u := range candidatesOf(in) {
		if hasPDFExtension(u) {
			if !verified {
				return models.Classification{IsPDF: true, SourceURL: u, Reason: models.ReasonURLExtension}
			}
			if reason, ok := c.verify(ctx, u); ok {
				return models.Classification{IsPDF: true, SourceURL: u, Reason: reason}
			}
			continue
		}
		if src := viewerSource(u); src != "" {
			if !verified {
				return models.Classification{IsPDF: true, SourceURL: src, Reason: models.ReasonViewerSrc}
			}
			if _, ok := c.verify(ctx, src); ok {
				return models.Classification{IsPDF: true, SourceURL: src, Reason: models.ReasonViewerSrc}
			}
		}
		if reason, ok := c.verify(ctx, u); ok {
			return models.Classification{IsPDF: true, SourceURL: u, Reason: reason}
		}
	}
	return models.Classification{SourceURL: in.URL, Reason: models.ReasonNotPDF}
}

func candidatesOf(in Input) []string {
	var out []string
	for _, u := range []string{in.PendingURL, in.URL} {
		u = strings.TrimSpace(u)
		if u != "" && (len(out) == 0 || out[0] != u) {
			out = append(out, u)
		}
	}
	return out
}

// verify probes rawURL with a HEAD and then a ranged GET. It never
// returns an error; an unreachable URL is simply not a PDF.
func (c *Classifier) verify(ctx context.Context, rawURL string) (models.Reason, bool) {
	if c.probe == nil || !isHTTP(rawURL) {
		return "", false
	}
	if resp, err := c.probe.Head(ctx, rawURL); err == nil && isPDFType(resp.MediaType()) {
		return models.ReasonContentType, true
	} else if err != nil {
		c.log.Debugf("classifier: head %s: %v", rawURL, err)
	}

	resp, err := c.probe.GetRange(ctx, rawURL, c.opts.ProbeBytes)
	if err != nil {
		c.log.Debugf("classifier: range get %s: %v", rawURL, err)
		return "", false
	}
	mt := resp.MediaType()
	if isPDFType(mt) {
		return models.ReasonContentType, true
	}
	if isGenericType(mt) && HasPDFMagic(resp.Body) {
		return models.ReasonMagicBytes, true
	}
	return "", false
}

func isPDFType(mt string) bool {
	return mt == "application/pdf" || mt == "application/x-pdf" || mt == "application/acrobat"
}

// isGenericType reports content types that say nothing about the payload.
func isGenericType(mt string) bool {
	switch mt {
	case "", "application/octet-stream", "binary/octet-stream", "application/binary",
		"application/download", "application/x-download", "application/force-download",
		"application/unknown", "text/plain":
		return true
	}
	return false
}

var pdfMagic = []byte("%PDF-")

// HasPDFMagic reports whether b starts with the PDF signature, ignoring a
// byte order mark and leading whitespace.
func HasPDFMagic(b []byte) bool {
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	b = bytes.TrimLeft(b, " \t\r\n\f\x00")
	return bytes.HasPrefix(b, pdfMagic)
}

func hasPDFExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var viewerParams = []string{"file", "src", "url"}

// viewerSource extracts the real document URL from a PDF viewer wrapper
// such as pdf.js viewer.html, the Google Docs viewer or a browser
// extension viewer. It returns "" for anything else.
func viewerSource(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	known := isKnownViewer(u)

	// extension viewers embed the target in the path:
	// chrome-extension://<id>/https://host/doc.pdf
	if strings.HasSuffix(scheme, "-extension") {
		known = true
		if rest := strings.TrimPrefix(u.Path, "/"); isHTTP(rest) {
			return rest
		}
	}

	q := u.Query()
	for _, p := range viewerParams {
		v := strings.TrimSpace(q.Get(p))
		if v == "" {
			continue
		}
		src, err := url.Parse(v)
		if err != nil {
			continue
		}
		if !src.IsAbs() && (scheme == "http" || scheme == "https") {
			src = u.ResolveReference(src)
		}
		s := src.String()
		if !isHTTP(s) {
			continue
		}
		if known || hasPDFExtension(s) {
			return s
		}
	}
	return ""
}

func isKnownViewer(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	p := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(p, "/viewer.html"), strings.HasSuffix(p, "/pdfviewer"):
		return true
	case host == "docs.google.com" && (p == "/viewer" || p == "/gview" || strings.HasPrefix(p, "/viewerng")):
		return true
	case host == "drive.google.com" && p == "/viewerng/viewer":
		return true
	}
	return false
}

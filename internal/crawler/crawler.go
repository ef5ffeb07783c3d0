
package crawler

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrTooLarge is returned by Get when the body exceeds the size cap.
	ErrTooLarge = errors.New("crawler: response exceeds size cap")

	// ErrNotHTML is returned by FetchPage for non-HTML responses.
	ErrNotHTML = errors.New("crawler: non-html content")
)

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crawler: %s: http status %d", e.URL, e.Status)
}

// Response is a fully buffered HTTP response.
type Response struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	Elapsed     time.Duration
}

// MediaType returns the lowercased media type without parameters.
func (r *Response) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(r.ContentType, ";")[0]))
	}
	return strings.ToLower(mt)
}

type HTTPClient struct {
	client    *http.Client
	sizeCap   int64
	userAgent string
}

const defaultUserAgent = "pagepress/1.0 (+https://github.com/pagepress)"

func NewHTTPClient(timeout, dialTimeout time.Duration, sizeCap int64) *HTTPClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		sizeCap:   sizeCap,
		userAgent: defaultUserAgent,
	}
}

// WithUserAgent overrides the User-Agent header sent with every request.
func (h *HTTPClient) WithUserAgent(ua string) *HTTPClient {
	if ua != "" {
		h.userAgent = ua
	}
	return h
}

// Get downloads rawURL completely, up to the size cap.
func (h *HTTPClient) Get(ctx context.Context, rawURL string) (*Response, error) {
	return h.do(ctx, http.MethodGet, rawURL, nil, h.sizeCap)
}

// Head issues a HEAD request; the returned Body is empty.
func (h *HTTPClient) Head(ctx context.Context, rawURL string) (*Response, error) {
	return h.do(ctx, http.MethodHead, rawURL, nil, 0)
}

// GetRange fetches the first n bytes of rawURL. Servers that ignore the
// Range header are cut off after n bytes.
func (h *HTTPClient) GetRange(ctx context.Context, rawURL string, n int64) (*Response, error) {
	hdr := http.Header{}
	hdr.Set("Range", fmt.Sprintf("bytes=0-%d", n-1))
	resp, err := h.do(ctx, http.MethodGet, rawURL, hdr, -n)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// FetchPage downloads an HTML page. Responses with a declared non-HTML
// content type are rejected; an absent content type is allowed.
func (h *HTTPClient) FetchPage(ctx context.Context, rawURL string) (*Response, error) {
	hdr := http.Header{}
	hdr.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	resp, err := h.do(ctx, http.MethodGet, rawURL, hdr, h.sizeCap)
	if err != nil {
		return nil, err
	}
	mt := resp.MediaType()
	if mt != "" && !strings.Contains(mt, "text/html") && !strings.Contains(mt, "application/xhtml+xml") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, mt)
	}
	return resp, nil
}

// do performs one request. limit > 0 caps the body and fails past it,
// limit < 0 truncates silently at -limit bytes, limit == 0 skips the body.
func (h *HTTPClient) do(ctx context.Context, method, rawURL string, hdr http.Header, limit int64) (*Response, error) {
	start := time.Now()
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("crawler: invalid url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("crawler: unsupported scheme %q", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}

	out := &Response{
		URL:         resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if method == http.MethodHead || limit == 0 {
		out.Elapsed = time.Since(start)
		return out, nil
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	if limit < 0 {
		out.Body, err = io.ReadAll(io.LimitReader(body, -limit))
		if err != nil {
			return nil, err
		}
		out.Elapsed = time.Since(start)
		return out, nil
	}

	// enforce a size cap
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s (max %d bytes)", ErrTooLarge, rawURL, limit)
	}
	out.Body = data
	out.Elapsed = time.Since(start)
	return out, nil
}

// Package sanitizer turns a rendered page (or a readability extract of it)
// into a clean XHTML fragment suitable for an EPUB section.
//
// Cleaning resolves links against the page URL, drops non-renderable
// elements, prunes boilerplate (navigation, promotional rails, consent
// banners, link lists, residual "Advertisement" labels) and serializes
// the remaining tree as strict XHTML. Clean is idempotent.
package sanitizer

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pagepress/internal/models"
)

// TokenPrefix starts every image placeholder token.
const TokenPrefix = "pagepress-img-"

// tokenSeq is process-wide so tokens are never reused across documents.
var tokenSeq atomic.Uint64

// Extracted is the optional output of a readability-style extractor.
type Extracted struct {
	Title    string
	Byline   string
	Excerpt  string
	SiteName string
	Lang     string
	Content  string
}

type Result struct {
	Title    string
	Byline   string
	Excerpt  string
	SiteName string
	Lang     string
	Content  string
	Images   []models.ImagePlaceholder
}

type Sanitizer struct{}

func New() *Sanitizer { return &Sanitizer{} }

// Sanitize extracts metadata from page and cleans either the extracted
// content (when present) or the page's main content element. Image
// sources in the result are replaced by placeholder tokens.
func (s *Sanitizer) Sanitize(page *goquery.Document, pageURL *url.URL, ex *Extracted) (Result, error) {
	if page == nil {
		return Result{}, fmt.Errorf("sanitizer: nil page")
	}
	if ex == nil {
		ex = &Extracted{}
	}

	res := Result{
		Title:    firstNonEmpty(ex.Title, metaContent(page, `meta[property="og:title"]`), page.Find("title").First().Text(), page.Find("h1").First().Text()),
		Byline:   firstNonEmpty(ex.Byline, metaContent(page, `meta[name="author"]`), metaContent(page, `meta[property="article:author"]`)),
		Excerpt:  firstNonEmpty(ex.Excerpt, metaContent(page, `meta[name="description"]`), metaContent(page, `meta[property="og:description"]`)),
		SiteName: firstNonEmpty(ex.SiteName, metaContent(page, `meta[property="og:site_name"]`)),
		Lang:     firstNonEmpty(ex.Lang, page.Find("html").AttrOr("lang", ""), metaContent(page, `meta[http-equiv="content-language"]`)),
	}

	fragment := ex.Content
	if strings.TrimSpace(fragment) == "" {
		var err error
		fragment, err = mainContent(page).Html()
		if err != nil {
			return Result{}, fmt.Errorf("sanitizer: render main content: %w", err)
		}
	}

	root, err := parseFragment(fragment)
	if err != nil {
		return Result{}, err
	}
	clean(root, pageURL)
	res.Images = tokenizeImages(root)

	var b strings.Builder
	renderChildren(&b, root)
	res.Content = strings.TrimSpace(b.String())
	return res, nil
}

// Clean sanitizes an HTML fragment and returns it as XHTML. Relative
// links are resolved against base when it is non-nil.
func Clean(fragment string, base *url.URL) (string, error) {
	root, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	clean(root, base)
	var b strings.Builder
	renderChildren(&b, root)
	return strings.TrimSpace(b.String()), nil
}

func parseFragment(fragment string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("sanitizer: parse fragment: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// mainContent picks the most specific content container of a full page.
func mainContent(page *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"article", "main", `[role="main"]`, "body"} {
		if s := page.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return page.Selection
}

func clean(root *html.Node, base *url.URL) {
	doc := goquery.NewDocumentFromNode(root)
	resolveURLs(doc, base)
	removeElements(root)
	for pass := 0; pass < maxPrunePasses; pass++ {
		changed := pruneBoilerplate(doc, root)
		changed = pruneLinkHeavy(doc, root) || changed
		changed = pruneResidualText(root) || changed
		if !changed {
			break
		}
	}
	filterAttributes(doc)
}

func resolveURLs(doc *goquery.Document, base *url.URL) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || isPlaceholderSrc(src) {
			for _, attr := range []string{"data-src", "data-original", "data-lazy-src"} {
				if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
					src = v
					break
				}
			}
		}
		if src == "" || isPlaceholderSrc(src) {
			if first := firstSrcsetURL(s.AttrOr("srcset", "")); first != "" {
				src = first
			}
		}
		if src != "" {
			s.SetAttr("src", src)
		}
	})

	doc.Find("[href], [src], [cite]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"href", "src", "cite"} {
			v, ok := s.Attr(attr)
			if !ok {
				continue
			}
			resolved, safe := resolveURL(base, v)
			if !safe {
				s.RemoveAttr(attr)
				continue
			}
			s.SetAttr(attr, resolved)
		}
	})
}

func isPlaceholderSrc(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "data:image/gif") ||
		strings.HasPrefix(lower, "data:image/svg+xml") ||
		strings.Contains(lower, "placeholder") ||
		strings.Contains(lower, "blank.gif") ||
		strings.Contains(lower, "spacer.gif")
}

func firstSrcsetURL(srcset string) string {
	first := strings.TrimSpace(strings.Split(srcset, ",")[0])
	if first == "" {
		return ""
	}
	return strings.Fields(first)[0]
}

// resolveURL returns the absolute form of raw and whether it is safe to
// keep. Script-capable schemes are unsafe.
func resolveURL(base *url.URL, raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", true
	}
	u, err := url.Parse(v)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "javascript", "vbscript", "file":
		return "", false
	case "data", "blob", "mailto", "tel":
		return v, true
	}
	if base == nil || u.IsAbs() {
		return u.String(), true
	}
	return base.ResolveReference(u).String(), true
}

func removeElements(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		switch {
		case c.Type == html.CommentNode || c.Type == html.DoctypeNode:
			n.RemoveChild(c)
			continue
		case c.Type != html.ElementNode:
			continue
		case removedTags[c.DataAtom] || hasAttr(c, "hidden"):
			n.RemoveChild(c)
			continue
		}
		removeElements(c)
		if unwrappedTags[c.DataAtom] || c.DataAtom == 0 {
			unwrap(c)
		}
	}
}

// unwrap replaces n with its children.
func unwrap(n *html.Node) {
	parent := n.Parent
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

func pruneBoilerplate(doc *goquery.Document, root *html.Node) bool {
	rootLen := textLen(root)
	var victims []*html.Node
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if n == root {
			return
		}
		if structuralTags[n.DataAtom] {
			victims = append(victims, n)
			return
		}
		if !looksLikeBoilerplate(n) {
			return
		}
		if rootLen > 0 && float64(textLen(n)) >= bulkShareProtect*float64(rootLen) {
			return
		}
		victims = append(victims, n)
	})
	return detachAll(root, victims)
}

func looksLikeBoilerplate(n *html.Node) bool {
	if role := strings.ToLower(strings.TrimSpace(attr(n, "role"))); role != "" {
		for _, r := range strings.Fields(role) {
			if boilerplateRoles[r] {
				return true
			}
		}
	}
	if label := attr(n, "aria-label"); label != "" && boilerplateLabelPattern.MatchString(label) {
		return true
	}
	for _, key := range addressAttrs {
		if v := attr(n, key); v != "" && boilerplatePattern.MatchString(v) {
			return true
		}
	}
	return false
}

func pruneLinkHeavy(doc *goquery.Document, root *html.Node) bool {
	rootLen := textLen(root)
	var victims []*html.Node
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if n == root || n.DataAtom == atom.A {
			return
		}
		total := textLen(n)
		if rootLen > 0 && float64(total) >= heavyShareProtect*float64(rootLen) {
			return
		}
		if isLinkHeavy(s, total) {
			victims = append(victims, n)
		}
	})
	return detachAll(root, victims)
}

func isLinkHeavy(s *goquery.Selection, total int) bool {
	anchors := s.Find("a")
	if anchors.Length() < minLinksForHeavy {
		return false
	}
	if total == 0 {
		return true
	}
	linkText := 0
	anchors.Each(func(_ int, a *goquery.Selection) {
		linkText += textLen(a.Get(0))
	})
	return float64(linkText)/float64(total) > linkDensityThreshold(total)
}

// pruneResidualText removes short furniture labels together with the
// small wrapper around them so no empty shell is left behind.
func pruneResidualText(root *html.Node) bool {
	var hits []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode && isResidual(c) {
				hits = append(hits, c)
			}
			walk(c)
		}
	}
	walk(root)

	var victims []*html.Node
	for _, t := range hits {
		victims = append(victims, residualContainer(root, t))
	}
	return detachAll(root, victims)
}

func isResidual(t *html.Node) bool {
	text := collapse(t.Data)
	if text == "" || len([]rune(text)) > maxResidualLen {
		return false
	}
	if text == "Image" {
		return !nearImage(t)
	}
	return residualPhrases[strings.ToLower(text)]
}

// nearImage reports whether a caption-like text node sits next to a real
// image, either in its parent or in the figure around its figcaption.
func nearImage(t *html.Node) bool {
	p := t.Parent
	if p == nil {
		return false
	}
	if hasDescendant(p, atom.Img) {
		return true
	}
	return p.DataAtom == atom.Figcaption && p.Parent != nil && hasDescendant(p.Parent, atom.Img)
}

func residualContainer(root, t *html.Node) *html.Node {
	victim := t
	n := t.Parent
	for level := 0; level < maxResidualClimb && n != nil && n != root; level++ {
		total := textLen(n)
		if total > maxResidualLen && !isLinkHeavy(goquery.NewDocumentFromNode(n).Selection, total) {
			break
		}
		victim = n
		n = n.Parent
	}
	return victim
}

// detachAll removes the nodes that are still attached under root.
func detachAll(root *html.Node, nodes []*html.Node) bool {
	changed := false
	for _, n := range nodes {
		if n.Parent == nil || !attachedTo(root, n) {
			continue
		}
		n.Parent.RemoveChild(n)
		changed = true
	}
	return changed
}

func attachedTo(root, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func filterAttributes(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		allowed := allowedAttrs[n.Data]
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if a.Namespace != "" {
				continue
			}
			if allowedAttrs["*"][a.Key] || allowed[a.Key] {
				kept = append(kept, a)
			}
		}
		n.Attr = kept
		if n.DataAtom == atom.Img && !hasAttr(n, "alt") {
			n.Attr = append(n.Attr, html.Attribute{Key: "alt"})
		}
	})
}

// tokenizeImages swaps every image source for a fresh placeholder token.
func tokenizeImages(root *html.Node) []models.ImagePlaceholder {
	var out []models.ImagePlaceholder
	doc := goquery.NewDocumentFromNode(root)
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			s.Remove()
			return
		}
		token := fmt.Sprintf("%s%d", TokenPrefix, tokenSeq.Add(1))
		s.SetAttr("src", token)
		out = append(out, models.ImagePlaceholder{Token: token, SourceURL: src})
	})
	return out
}

func textLen(n *html.Node) int {
	count := 0
	inSpace := true
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, r := range n.Data {
				if isSpace(r) {
					inSpace = true
					continue
				}
				if inSpace && count > 0 {
					count++
				}
				inSpace = false
				count++
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return count
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\u00a0'
}

func collapse(s string) string {
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

func hasDescendant(n *html.Node, a atom.Atom) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return true
		}
		if hasDescendant(c, a) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key && a.Namespace == "" {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key && a.Namespace == "" {
			return true
		}
	}
	return false
}

func metaContent(page *goquery.Document, selector string) string {
	return page.Find(selector).First().AttrOr("content", "")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = collapse(v); v != "" {
			return v
		}
	}
	return ""
}

// Package epub assembles sanitized documents and their image assets into
// an EPUB 3 book (with an EPUB 2 NCX for older readers).
//
// The archive layout is fixed:
//
//	mimetype
//	META-INF/container.xml
//	OEBPS/content.opf
//	OEBPS/nav.xhtml
//	OEBPS/toc.ncx
//	OEBPS/styles.css
//	OEBPS/section-N.xhtml
//	OEBPS/images/image-N.ext
//
// Sections follow input order and are numbered from 1.
package epub

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"pagepress/internal/archive"
	"pagepress/internal/models"
)

// ErrNoArticles is returned by Build when there is nothing to put in a book.
var ErrNoArticles = errors.New("epub: no articles to build")

const (
	packagePath   = "OEBPS/content.opf"
	navHref       = "nav.xhtml"
	ncxHref       = "toc.ncx"
	stylesHref    = "styles.css"
	contentDir    = "OEBPS/"
	collectionFmt = "Pagepress Collection %s"
)

// Options controls book metadata. Zero values pick defaults.
type Options struct {
	Title      string
	Identifier string
	Language   string
	Author     string
	Modified   time.Time
}

type Book struct {
	Title      string
	Identifier string
	Modified   time.Time
	Data       []byte
}

type section struct {
	href  string
	id    string
	title string
	doc   models.Document
}

// Build packages docs (in order) and assets into an EPUB archive.
func Build(docs []models.Document, assets []models.Asset, opts Options) (*Book, error) {
	if len(docs) == 0 {
		return nil, ErrNoArticles
	}
	modified := opts.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	modified = modified.UTC().Truncate(time.Second)

	b := &Book{
		Title:      bookTitle(docs, opts.Title, modified),
		Identifier: opts.Identifier,
		Modified:   modified,
	}
	if b.Identifier == "" {
		b.Identifier = "urn:uuid:" + uuid.NewString()
	}
	lang := firstNonEmpty(opts.Language, docs[0].Lang, "en")

	sections := make([]section, len(docs))
	for i, d := range docs {
		n := i + 1
		sections[i] = section{
			href:  fmt.Sprintf("section-%d.xhtml", n),
			id:    fmt.Sprintf("section-%d", n),
			title: documentTitle(d),
			doc:   d,
		}
	}

	containerXML, err := marshalDocument(container{
		Version: "1.0",
		Xmlns:   "urn:oasis:names:tc:opendocument:xmlns:container",
		RootFiles: []rootFile{
			{FullPath: packagePath, MediaType: "application/oebps-package+xml"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("epub: container: %w", err)
	}
	opf, err := marshalDocument(packageDocument(b, lang, opts.Author, sections, assets))
	if err != nil {
		return nil, fmt.Errorf("epub: package document: %w", err)
	}
	toc, err := marshalDocument(ncxDocument(b, sections))
	if err != nil {
		return nil, fmt.Errorf("epub: ncx: %w", err)
	}

	entries := []archive.Entry{
		{Path: "mimetype", Data: []byte(models.MimeEPUB)},
		{Path: "META-INF/container.xml", Data: containerXML},
		{Path: packagePath, Data: opf},
		{Path: contentDir + navHref, Data: navDocument(b.Title, lang, sections)},
		{Path: contentDir + ncxHref, Data: toc},
		{Path: contentDir + stylesHref, Data: []byte(stylesheet)},
	}
	for _, s := range sections {
		entries = append(entries, archive.Entry{
			Path: contentDir + s.href,
			Data: sectionDocument(s, firstNonEmpty(s.doc.Lang, lang)),
		})
	}
	for _, a := range assets {
		entries = append(entries, archive.Entry{Path: a.ArchivePath, Data: a.Data})
	}

	data, err := archive.Build(entries, modified)
	if err != nil {
		return nil, fmt.Errorf("epub: write archive: %w", err)
	}
	b.Data = data
	return b, nil
}

func packageDocument(b *Book, lang, author string, sections []section, assets []models.Asset) opfPackage {
	pkg := opfPackage{
		Xmlns:            "http://www.idpf.org/2007/opf",
		Version:          "3.0",
		UniqueIdentifier: "bookid",
		Lang:             lang,
		Metadata: opfMetadata{
			XmlnsDC:    "http://purl.org/dc/elements/1.1/",
			Identifier: opfIdentifier{ID: "bookid", Value: b.Identifier},
			Title:      b.Title,
			Language:   lang,
			Creator:    author,
			Metas: []opfMeta{
				{Property: "dcterms:modified", Value: b.Modified.Format("2006-01-02T15:04:05Z")},
			},
		},
		Spine: opfSpine{Toc: "ncx"},
	}
	if len(sections) == 1 {
		pkg.Metadata.Source = sections[0].doc.URL
	}

	items := []opfManifestItem{
		{ID: "nav", Href: navHref, MediaType: "application/xhtml+xml", Properties: "nav"},
		{ID: "ncx", Href: ncxHref, MediaType: "application/x-dtbncx+xml"},
		{ID: "css", Href: stylesHref, MediaType: "text/css"},
	}
	for _, s := range sections {
		items = append(items, opfManifestItem{ID: s.id, Href: s.href, MediaType: "application/xhtml+xml"})
		pkg.Spine.ItemRefs = append(pkg.Spine.ItemRefs, opfSpineItemRef{IDRef: s.id})
	}
	for _, a := range assets {
		href := strings.TrimPrefix(a.ArchivePath, contentDir)
		id := strings.TrimSuffix(path.Base(href), path.Ext(href))
		items = append(items, opfManifestItem{ID: id, Href: href, MediaType: a.MediaType})
	}
	pkg.Manifest.Items = items
	return pkg
}

func ncxDocument(b *Book, sections []section) ncx {
	doc := ncx{
		Xmlns:   "http://www.daisy.org/z3986/2005/ncx/",
		Version: "2005-1",
		Head: []ncxMeta{
			{Name: "dtb:uid", Content: b.Identifier},
			{Name: "dtb:depth", Content: "1"},
			{Name: "dtb:totalPageCount", Content: "0"},
			{Name: "dtb:maxPageNumber", Content: "0"},
		},
		DocTitle: ncxText{Text: b.Title},
	}
	for i, s := range sections {
		doc.NavMap = append(doc.NavMap, navPoint{
			ID:        fmt.Sprintf("navpoint-%d", i+1),
			PlayOrder: i + 1,
			Label:     ncxText{Text: s.title},
			Content:   ncxContent{Src: s.href},
		})
	}
	return doc
}

// bookTitle applies the title policy: a single article names the book,
// several articles use the caller's title or a dated collection title.
func bookTitle(docs []models.Document, title string, modified time.Time) string {
	if len(docs) == 1 {
		return documentTitle(docs[0])
	}
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return fmt.Sprintf(collectionFmt, modified.Format("2006-01-02 15:04"))
}

func documentTitle(d models.Document) string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return t
	}
	if u, err := url.Parse(d.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "Untitled"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

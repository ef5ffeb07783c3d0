
package models

// Source is one selected input document as reported by the document source.
type Source struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	PendingURL string `json:"pendingUrl,omitempty"`
	Title      string `json:"title,omitempty"`
}

type ImagePlaceholder struct {
	Token     string `json:"token"`
	SourceURL string `json:"sourceUrl"`
}

// Document is an extracted article. Content is sanitized XHTML that may
// carry ImagePlaceholder tokens until the image embedder resolves them.
type Document struct {
	ID       string             `json:"id"`
	URL      string             `json:"url"`
	Title    string             `json:"title"`
	Byline   string             `json:"byline,omitempty"`
	Excerpt  string             `json:"excerpt,omitempty"`
	SiteName string             `json:"siteName,omitempty"`
	Lang     string             `json:"lang,omitempty"`
	Content  string             `json:"content"`
	Images   []ImagePlaceholder `json:"images,omitempty"`
}

// Asset is an embedded image. ArchivePath is the full path inside the
// archive; Href is relative to the package directory.
type Asset struct {
	ArchivePath string `json:"archivePath"`
	Href        string `json:"href"`
	MediaType   string `json:"mediaType"`
	SourceURL   string `json:"sourceUrl"`
	Data        []byte `json:"-"`
}

const (
	MimeEPUB = "application/epub+zip"
	MimePDF  = "application/pdf"
)

type Artifact struct {
	Filename   string   `json:"filename"`
	MimeType   string   `json:"mimeType"`
	Data       []byte   `json:"-"`
	Size       int      `json:"size"`
	SourceURLs []string `json:"sourceUrls,omitempty"`
	TooLarge   bool     `json:"tooLarge,omitempty"`
}

// Reason explains a classification decision.
type Reason string

const (
	ReasonURLExtension Reason = "url-extension"
	ReasonViewerSrc    Reason = "viewer-src"
	ReasonContentType  Reason = "content-type"
	ReasonMagicBytes   Reason = "magic-bytes"
	ReasonNotPDF       Reason = "not-pdf"
)

type Classification struct {
	IsPDF     bool   `json:"isPdf"`
	SourceURL string `json:"sourceUrl"`
	Reason    Reason `json:"reason"`
}

type PDFCandidate struct {
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
	Origin string  `json:"origin,omitempty"`
}

// Stage names where a per-item failure happened.
const (
	StageClassify = "classify"
	StageExtract  = "extract"
	StageImage    = "image"
	StagePDF      = "pdf"
	StageDeliver  = "deliver"
	StagePersist  = "persist"
)

type Failure struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

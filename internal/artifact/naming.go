// Package artifact names output files and keeps names unique within one
// run.
package artifact

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"pagepress/internal/models"
)

// TimestampLayout is the filename-safe timestamp that prefixes every name.
const TimestampLayout = "2006-01-02T15_04_05"

// TooLargePrefix marks artifacts the mail transport refused.
const TooLargePrefix = "TOO-LARGE-FOR-EMAIL "

const (
	maxDomainsInName = 3
	maxStemLen       = 80
)

var unsafeChars = regexp.MustCompile(`[\x00-\x1f<>:"/\\|?*]+`)
var spaces = regexp.MustCompile(`\s+`)

// Namer hands out filenames that are unique ignoring case.
type Namer struct {
	taken map[string]bool
	next  map[string]int
}

func NewNamer() *Namer {
	return &Namer{taken: map[string]bool{}, next: map[string]int{}}
}

// Unique returns name the first time it is seen, then name-01, name-02,
// ... with the suffix placed before the extension.
func (n *Namer) Unique(name string) string {
	key := strings.ToLower(name)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := n.next[key]; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%02d%s", stem, i, ext)
		}
		if ck := strings.ToLower(candidate); !n.taken[ck] {
			n.taken[ck] = true
			n.next[key] = i + 1
			return candidate
		}
	}
}

// BookFilename names the EPUB after the distinct domains of its sources:
// "<ts> <d1> <d2> <d3> plus N.epub".
func BookFilename(ts time.Time, sourceURLs []string) string {
	var domains []string
	seen := map[string]bool{}
	for _, raw := range sourceURLs {
		d := domainOf(raw)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	parts := []string{ts.Format(TimestampLayout)}
	if len(domains) > maxDomainsInName {
		parts = append(parts, domains[:maxDomainsInName]...)
		parts = append(parts, fmt.Sprintf("plus %d", len(domains)-maxDomainsInName))
	} else {
		parts = append(parts, domains...)
	}
	return sanitize(strings.Join(parts, " ")) + ".epub"
}

// PDFFilename names a PDF "<ts> <domain> <title-or-basename>.pdf".
func PDFFilename(ts time.Time, sourceURL, title string) string {
	stem := strings.TrimSpace(title)
	if stem == "" {
		if u, err := url.Parse(sourceURL); err == nil {
			stem = strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
			if unescaped, err := url.PathUnescape(stem); err == nil {
				stem = unescaped
			}
		}
	}
	if stem == "." || stem == "/" {
		stem = ""
	}
	stem = strings.TrimSuffix(stem, ".pdf")
	stem = strings.TrimSuffix(stem, ".PDF")
	if r := []rune(stem); len(r) > maxStemLen {
		stem = strings.TrimSpace(string(r[:maxStemLen]))
	}
	parts := []string{ts.Format(TimestampLayout)}
	if d := domainOf(sourceURL); d != "" {
		parts = append(parts, d)
	}
	if stem != "" {
		parts = append(parts, stem)
	}
	return sanitize(strings.Join(parts, " ")) + ".pdf"
}

// FlagTooLarge prefixes the artifacts at idx with TooLargePrefix, marks
// them, and re-applies uniqueness across the whole set. Names of other
// artifacts are kept.
func FlagTooLarge(artifacts []models.Artifact, idx []int) []models.Artifact {
	out := make([]models.Artifact, len(artifacts))
	copy(out, artifacts)
	flagged := map[int]bool{}
	for _, i := range idx {
		if i >= 0 && i < len(out) {
			flagged[i] = true
		}
	}
	if len(flagged) == 0 {
		return out
	}
	namer := NewNamer()
	for i := range out {
		if !flagged[i] {
			out[i].Filename = namer.Unique(out[i].Filename)
		}
	}
	for i := range out {
		if flagged[i] {
			out[i].TooLarge = true
			out[i].Filename = namer.Unique(TooLargePrefix + out[i].Filename)
		}
	}
	return out
}

func domainOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

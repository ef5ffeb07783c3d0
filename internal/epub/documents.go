package epub

import (
	"fmt"
	"strings"

	"pagepress/internal/sanitizer"
)

const xhtmlPrologue = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
`

const stylesheet = `body {
  margin: 0 5%;
  font-family: serif;
  line-height: 1.5;
}
h1 {
  font-size: 1.6em;
  line-height: 1.2;
  margin: 1em 0 0.5em;
}
p.byline {
  font-style: italic;
  color: #555;
  margin: 0 0 1.5em;
}
p.source {
  font-size: 0.8em;
  color: #555;
  margin-top: 2em;
  word-break: break-all;
}
img {
  max-width: 100%;
  height: auto;
}
pre, code {
  font-family: monospace;
  white-space: pre-wrap;
}
blockquote {
  margin: 1em 1.5em;
  font-style: italic;
}
table {
  border-collapse: collapse;
}
td, th {
  border: 1px solid #ccc;
  padding: 0.2em 0.4em;
}
nav ol {
  list-style: decimal;
}
`

func writeHead(b *strings.Builder, title, lang string) {
	b.WriteString(xhtmlPrologue)
	fmt.Fprintf(b, `<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" xml:lang="%s" lang="%s">`+"\n",
		sanitizer.EscapeXML(lang), sanitizer.EscapeXML(lang))
	b.WriteString("<head>\n")
	b.WriteString(`<meta charset="utf-8"/>` + "\n")
	fmt.Fprintf(b, "<title>%s</title>\n", sanitizer.EscapeXML(title))
	fmt.Fprintf(b, `<link rel="stylesheet" type="text/css" href="%s"/>`+"\n", stylesHref)
	b.WriteString("</head>\n")
}

// navDocument lists one entry per section, in input order.
func navDocument(title, lang string, sections []section) []byte {
	var b strings.Builder
	writeHead(&b, title, lang)
	b.WriteString("<body>\n")
	b.WriteString(`<nav epub:type="toc" id="toc">` + "\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", sanitizer.EscapeXML(title))
	b.WriteString("<ol>\n")
	for _, s := range sections {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`+"\n", s.href, sanitizer.EscapeXML(s.title))
	}
	b.WriteString("</ol>\n</nav>\n</body>\n</html>\n")
	return []byte(b.String())
}

func sectionDocument(s section, lang string) []byte {
	var b strings.Builder
	writeHead(&b, s.title, lang)
	b.WriteString("<body>\n<article>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", sanitizer.EscapeXML(s.title))
	if by := strings.TrimSpace(s.doc.Byline); by != "" {
		fmt.Fprintf(&b, `<p class="byline">%s</p>`+"\n", sanitizer.EscapeXML(by))
	}
	b.WriteString(`<div class="content">`)
	b.WriteString(s.doc.Content)
	b.WriteString("</div>\n")
	if u := strings.TrimSpace(s.doc.URL); u != "" {
		esc := sanitizer.EscapeXML(u)
		fmt.Fprintf(&b, `<p class="source">Source: <a href="%s">%s</a></p>`+"\n", esc, esc)
	}
	b.WriteString("</article>\n</body>\n</html>\n")
	return []byte(b.String())
}

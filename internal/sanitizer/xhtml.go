package sanitizer

import (
	"strings"

	"golang.org/x/net/html"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// booleanAttrs render as attr="attr" when they carry no value.
var booleanAttrs = map[string]bool{
	"allowfullscreen": true, "async": true, "autofocus": true, "autoplay": true,
	"checked": true, "compact": true, "controls": true, "default": true,
	"defer": true, "disabled": true, "formnovalidate": true, "hidden": true,
	"inert": true, "ismap": true, "itemscope": true, "loop": true,
	"multiple": true, "muted": true, "nomodule": true, "noshade": true,
	"novalidate": true, "nowrap": true, "open": true, "playsinline": true,
	"readonly": true, "required": true, "reversed": true, "selected": true,
}

// EscapeXML escapes &, <, > and " and drops characters XML 1.0 forbids.
func EscapeXML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	writeEscaped(&b, s)
	return b.String()
}

func writeEscaped(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			if validXMLChar(r) {
				b.WriteRune(r)
			}
		}
	}
}

func validXMLChar(r rune) bool {
	switch {
	case r == 0x9 || r == 0xA || r == 0xD:
		return true
	case r >= 0x20 && r <= 0xD7FF, r >= 0xE000 && r <= 0xFFFD, r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// renderChildren serializes the children of n as strict XHTML.
func renderChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c)
	}
}

func renderNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		writeEscaped(b, n.Data)
	case html.DocumentNode:
		renderChildren(b, n)
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		b.WriteByte('<')
		b.WriteString(name)
		for _, a := range n.Attr {
			if a.Namespace != "" || !validXMLName(a.Key) {
				continue
			}
			val := a.Val
			if val == "" && booleanAttrs[a.Key] {
				val = a.Key
			}
			b.WriteByte(' ')
			b.WriteString(a.Key)
			b.WriteString(`="`)
			writeEscaped(b, val)
			b.WriteByte('"')
		}
		if voidElements[name] {
			b.WriteString("/>")
			return
		}
		b.WriteByte('>')
		// The HTML parser drops one leading newline inside these elements.
		if (name == "pre" || name == "textarea" || name == "listing") &&
			n.FirstChild != nil && n.FirstChild.Type == html.TextNode &&
			strings.HasPrefix(n.FirstChild.Data, "\n") {
			b.WriteByte('\n')
		}
		renderChildren(b, n)
		b.WriteString("</")
		b.WriteString(name)
		b.WriteByte('>')
	}
}

// validXMLName is a conservative ASCII check; attribute names outside it
// are dropped rather than risk malformed output.
func validXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case i > 0 && (c >= '0' && c <= '9' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

package epub

import (
	"bytes"
	"encoding/xml"
)

type container struct {
	XMLName   xml.Name   `xml:"container"`
	Version   string     `xml:"version,attr"`
	Xmlns     string     `xml:"xmlns,attr"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Xmlns            string      `xml:"xmlns,attr"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Lang             string      `xml:"xml:lang,attr,omitempty"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
	Spine            opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	XmlnsDC    string        `xml:"xmlns:dc,attr"`
	Identifier opfIdentifier `xml:"dc:identifier"`
	Title      string        `xml:"dc:title"`
	Language   string        `xml:"dc:language"`
	Creator    string        `xml:"dc:creator,omitempty"`
	Source     string        `xml:"dc:source,omitempty"`
	Metas      []opfMeta     `xml:"meta"`
}

type opfIdentifier struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type opfMeta struct {
	Property string `xml:"property,attr"`
	Value    string `xml:",chardata"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type opfSpine struct {
	Toc      string            `xml:"toc,attr"`
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

type opfSpineItemRef struct {
	IDRef string `xml:"idref,attr"`
}

type ncx struct {
	XMLName  xml.Name   `xml:"ncx"`
	Xmlns    string     `xml:"xmlns,attr"`
	Version  string     `xml:"version,attr"`
	Head     []ncxMeta  `xml:"head>meta"`
	DocTitle ncxText    `xml:"docTitle"`
	NavMap   []navPoint `xml:"navMap>navPoint"`
}

type ncxMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type ncxText struct {
	Text string `xml:"text"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     ncxText    `xml:"navLabel"`
	Content   ncxContent `xml:"content"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// marshalDocument renders v as an indented XML document with declaration.
func marshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

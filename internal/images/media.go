package images

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// extByMediaType and mediaTypeByExt form the fixed bidirectional table of
// embeddable image formats. Only canonical media types appear as values
// in mediaTypeByExt.
var extByMediaType = map[string]string{
	"image/jpeg":     "jpg",
	"image/jpg":      "jpg",
	"image/pjpeg":    "jpg",
	"image/png":      "png",
	"image/gif":      "gif",
	"image/webp":     "webp",
	"image/svg+xml":  "svg",
	"image/avif":     "avif",
	"image/bmp":      "bmp",
	"image/x-ms-bmp": "bmp",
}

var mediaTypeByExt = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"avif": "image/avif",
	"bmp":  "image/bmp",
}

// Resolve maps a response content type, or failing that the URL's file
// extension, to a canonical media type and archive extension.
func Resolve(contentType, rawURL string) (mediaType, ext string, ok bool) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if e, found := extByMediaType[strings.ToLower(mt)]; found {
			return mediaTypeByExt[e], e, true
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	e := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if mt, found := mediaTypeByExt[e]; found {
		return mt, extByMediaType[mt], true
	}
	return "", "", false
}

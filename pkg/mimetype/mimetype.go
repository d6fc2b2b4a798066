// Package mimetype maps file extensions to the MIME types sent to clients.
package mimetype

import (
	"path"
	"strings"
)

const (
	Text   = "text/plain"
	HTML   = "text/html"
	CSS    = "text/css"
	JS     = "application/javascript"
	JSON   = "application/json"
	WASM   = "application/wasm"
	Binary = "application/octet-stream"
	PNG    = "image/png"
	JPEG   = "image/jpeg"
	GIF    = "image/gif"
	SVG    = "image/svg+xml"
	Icon   = "image/x-icon"
)

// keys are lowercase and without the leading dot
var byExtension = map[string]string{
	"html": HTML,
	"htm":  HTML,
	"txt":  Text,
	"css":  CSS,
	"js":   JS,
	"mjs":  JS,
	"json": JSON,
	"wasm": WASM,
	"pck":  Binary,
	"png":  PNG,
	"jpg":  JPEG,
	"jpeg": JPEG,
	"gif":  GIF,
	"svg":  SVG,
	"ico":  Icon,
}

// ForExtension returns the MIME type for an extension, with or without the leading dot.
// Unknown extensions are served as HTML.
func ForExtension(ext string) string {
	if mt, ok := byExtension[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return mt
	}
	return HTML
}

// ForPath returns the MIME type for the extension of the last element of a request path.
func ForPath(p string) string {
	return ForExtension(path.Ext(p))
}

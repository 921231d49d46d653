package parser

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/dgallion1/reportgest/internal/doctree"
)

// Parser converts a fetched body into a DocTree. name is the source URL or
// file name and only seeds the title.
type Parser interface {
	Parse(r io.Reader, name string) (*doctree.DocTree, error)
}

// SupportedTypes lists the media types sources may be cleaned from.
var SupportedTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"text/plain":            true,
	"text/markdown":         true,
	"text/x-markdown":       true,
	"text/csv":              true,
	"application/pdf":       true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// ForContentType returns the parser for a media type (without parameters).
func ForContentType(mediaType string) (Parser, error) {
	switch strings.ToLower(mediaType) {
	case "text/html", "application/xhtml+xml":
		return &HTMLParser{}, nil
	case "text/plain":
		return &TextParser{}, nil
	case "text/markdown", "text/x-markdown":
		return &MarkdownParser{}, nil
	case "text/csv":
		return &CSVParser{}, nil
	case "application/pdf":
		return &PDFParser{}, nil
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %s", mediaType)
	}
}

// baseTitle derives a fallback title from a URL or file name: the last path
// segment without its extension, or the host for bare URLs.
func baseTitle(name string) string {
	p := name
	if u, err := url.Parse(name); err == nil && u.Host != "" {
		p = u.Path
		if strings.Trim(p, "/") == "" {
			return strings.TrimPrefix(u.Host, "www.")
		}
	}
	base := path.Base(strings.TrimRight(p, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

package export

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/iksnae/ragulate/internal"
)

// Exporter writes one session in a single output format
type Exporter interface {
	Export(session *internal.Session, w io.Writer) error
	Extension() string
}

// Formats lists the accepted format names
var Formats = []string{"json", "jsonl", "md", "yaml"}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// FileName builds a filesystem-safe name for a session export. The remote id
// is preferred because it is stable across clients.
func FileName(session *internal.Session, ext string) string {
	base := session.RemoteID
	if base == "" {
		base = session.LocalID
	}
	slug := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, session.Title)
	slug = strings.Trim(slug, "-")
	if len(slug) > 32 {
		slug = strings.TrimRight(slug[:32], "-")
	}
	if slug == "" {
		return base + "." + ext
	}
	return base + "-" + slug + "." + ext
}

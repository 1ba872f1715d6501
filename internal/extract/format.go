package extract

import (
	"bytes"
	"strings"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Format identifies a supported document format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatText     Format = "txt"
	FormatMarkdown Format = "markdown"
)

var formatExtensions = map[Format][]string{
	FormatPDF:      {".pdf"},
	FormatText:     {".txt"},
	FormatMarkdown: {".md"},
}

var pdfMagic = []byte("%PDF")

// DetectFormat determines the document format, preferring content
// signature (magic bytes) over the filename extension. Unsupported
// formats yield a 400 extraction error.
func DetectFormat(filename string, content []byte) (Format, error) {
	if bytes.HasPrefix(content, pdfMagic) {
		return FormatPDF, nil
	}

	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		ext := strings.ToLower(filename[idx:])
		for format, exts := range formatExtensions {
			for _, e := range exts {
				if ext == e {
					return format, nil
				}
			}
		}
	}

	return "", ragerr.NewExtraction(400, "Unsupported file format: "+filename).
		WithDetail("filename", filename).
		WithDetail("reason", "extension_not_supported")
}

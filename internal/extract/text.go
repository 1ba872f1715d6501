package extract

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// linesPerPage controls how plain text files are split into synthetic pages.
const linesPerPage = 50

// TextExtractor converts plain text bytes into a paged Document.
type TextExtractor struct{}

// Extract decodes content (UTF-8 first, Latin-1 fallback), splits it into
// 50-line pages, and normalizes each page.
func (TextExtractor) Extract(content []byte, documentID uuid.UUID, filename string) (*Document, error) {
	start := time.Now()

	decoded := decodeText(content)
	decoded = strings.ReplaceAll(decoded, "\r\n", "\n")
	decoded = strings.ReplaceAll(decoded, "\r", "\n")
	lines := strings.Split(decoded, "\n")

	var pages []Page
	for offset := 0; offset < len(lines); offset += linesPerPage {
		end := offset + linesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pageLines := lines[offset:end]
		page := buildPage(offset/linesPerPage, strings.Join(pageLines, "\n"), len(pageLines))
		pages = append(pages, page)
	}

	var normalizedAll []string
	for _, p := range pages {
		normalizedAll = append(normalizedAll, p.NormalizedText)
	}
	language := DetectLanguage(strings.Join(normalizedAll, "\n"))
	for i := range pages {
		pages[i].Language = language
	}

	totalWords, totalChars, emptyPages := 0, 0, 0
	for _, p := range pages {
		totalWords += p.WordCount
		totalChars += p.CharCount
		if p.IsEmpty {
			emptyPages++
		}
	}

	return &Document{
		DocumentID: documentID,
		Filename:   filename,
		Format:     string(FormatText),
		Language:   language,
		TotalPages: len(pages),
		Pages:      pages,
		ExtractionMetadata: map[string]interface{}{
			"lines_per_page":  linesPerPage,
			"total_words":     totalWords,
			"total_chars":     totalChars,
			"empty_pages":     emptyPages,
			"non_empty_pages": len(pages) - emptyPages,
		},
		DurationMS: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

// decodeText interprets bytes as UTF-8 when valid, otherwise as Latin-1.
func decodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}

	// Latin-1: each byte maps directly to the code point of the same value.
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes)
}

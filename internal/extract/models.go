// Package extract converts uploaded document bytes into normalized,
// page-structured text ready for chunking. It covers format detection,
// text and markdown extraction, and a tiered PDF pipeline.
package extract

import (
	"github.com/google/uuid"
)

// Page is one extracted page with its raw and normalized text plus
// per-page quality signals.
type Page struct {
	PageNumber      int      `json:"page_number"`
	RawText         string   `json:"raw_text"`
	NormalizedText  string   `json:"normalized_text"`
	IsEmpty         bool     `json:"is_empty"`
	WordCount       int      `json:"word_count"`
	CharCount       int      `json:"char_count"`
	LineCount       int      `json:"line_count"`
	Language        string   `json:"language,omitempty"`
	SectionTitle    string   `json:"section_title,omitempty"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// Document is the output of extraction: ordered pages plus document-level
// metadata and quality metrics.
type Document struct {
	DocumentID         uuid.UUID              `json:"document_id"`
	Filename           string                 `json:"filename"`
	Format             string                 `json:"format"` // pdf, txt, markdown
	Language           string                 `json:"language"`
	TotalPages         int                    `json:"total_pages"`
	Pages              []Page                 `json:"pages"`
	ExtractionMetadata map[string]interface{} `json:"extraction_metadata,omitempty"`
	DurationMS         float64                `json:"extraction_duration_ms"`
}

// NonEmptyPages returns the pages that carry usable text.
func (d *Document) NonEmptyPages() []Page {
	out := make([]Page, 0, len(d.Pages))
	for _, p := range d.Pages {
		if !p.IsEmpty {
			out = append(out, p)
		}
	}
	return out
}

// TotalWords returns the word count summed over all pages.
func (d *Document) TotalWords() int {
	total := 0
	for _, p := range d.Pages {
		total += p.WordCount
	}
	return total
}

// buildPage assembles a Page from raw text, computing normalization and
// the derived counts shared by all extractors. pageIndex is 0-based;
// stored page numbers are 1-based.
func buildPage(pageIndex int, rawText string, lineCount int) Page {
	normalized := Normalize(rawText)
	wordCount := 0
	if normalized != "" {
		wordCount = len(splitWords(normalized))
	}
	return Page{
		PageNumber:      pageIndex + 1,
		RawText:         rawText,
		NormalizedText:  normalized,
		IsEmpty:         IsEmptyPage(normalized),
		WordCount:       wordCount,
		CharCount:       len(normalized),
		LineCount:       lineCount,
		ConfidenceScore: 1.0,
	}
}

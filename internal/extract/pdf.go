package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// PDFAnalysis summarizes PDF characteristics used for tier routing.
type PDFAnalysis struct {
	PageCount            int      `json:"page_count"`
	HasText              bool     `json:"has_text"`
	HasTables            bool     `json:"has_tables"`
	HasImages            bool     `json:"has_images"`
	ExtractabilityRatio  float64  `json:"extractability_ratio"`
	AvgCharsPerPage      float64  `json:"avg_chars_per_page"`
	IsEncrypted          bool     `json:"is_encrypted"`
	IsScanned            bool     `json:"is_scanned"`
	RecommendedTier      int      `json:"recommended_tier"`
	AnalysisErrors       []string `json:"analysis_errors,omitempty"`
}

// classifyPDFOpenError maps a document-open failure to the extraction
// error taxonomy. Password-protected documents are reported as encrypted
// (the pipeline never carries a user-supplied password); everything else
// that MuPDF refuses to open is treated as corrupt.
func classifyPDFOpenError(err error, filename string) error {
	if errors.Is(err, fitz.ErrNeedsPassword) {
		return ragerr.NewExtraction(400, "PDF is encrypted and no password was provided").
			WithDetail("filename", filename).
			WithDetail("error_type", "encrypted_file")
	}
	return ragerr.NewExtraction(400, "PDF file is corrupt or not a valid PDF: "+err.Error()).
		WithDetail("filename", filename).
		WithDetail("error_type", "corrupt_file")
}

// detectTables flags text with columnar structure: several lines carrying
// repeated tab stops, pipe borders, or wide space runs.
func detectTables(text string) bool {
	columnar := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.Count(line, "\t") >= 2 || strings.Count(line, "|") >= 2 ||
			strings.Count(line, "   ") >= 2 {
			columnar++
			if columnar >= 3 {
				return true
			}
		}
	}
	return false
}

// sectionTitleMinFontSize is the font-size floor (points) for a text run
// to qualify as a section title.
const sectionTitleMinFontSize = 14.0

var titleRunPattern = regexp.MustCompile(`font-size:\s*([0-9.]+)(?:pt|px)[^>]*>([^<]+)<`)

// sectionTitleFromHTML scans a page's HTML rendering for the first text
// run at or above minFontSize with a trimmed length in [3, 200].
func sectionTitleFromHTML(html string, minFontSize float64) string {
	for _, m := range titleRunPattern.FindAllStringSubmatch(html, -1) {
		size, err := strconv.ParseFloat(m[1], 64)
		if err != nil || size < minFontSize {
			continue
		}
		title := strings.TrimSpace(m[2])
		if len(title) >= 3 && len(title) <= 200 {
			return title
		}
	}
	return ""
}

// AnalyzePDF samples the first, middle, and last pages to estimate how
// much native text the document carries and recommends an extraction tier.
func AnalyzePDF(content []byte, filename string) PDFAnalysis {
	result := PDFAnalysis{RecommendedTier: 1}

	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "password") || strings.Contains(errStr, "encrypted") {
			result.IsEncrypted = true
		}
		result.AnalysisErrors = append(result.AnalysisErrors, err.Error())
		result.RecommendedTier = 4 // nothing native to extract; try OCR
		return result
	}
	defer doc.Close()

	result.PageCount = doc.NumPage()

	sampleIndices := []int{0}
	if result.PageCount > 2 {
		sampleIndices = append(sampleIndices, result.PageCount/2)
	}
	if result.PageCount > 1 {
		sampleIndices = append(sampleIndices, result.PageCount-1)
	}

	var charsPerPage []int
	for _, idx := range sampleIndices {
		if idx >= result.PageCount {
			continue
		}
		text, err := doc.Text(idx)
		if err != nil {
			result.AnalysisErrors = append(result.AnalysisErrors,
				fmt.Sprintf("page %d analysis failed: %.30s", idx, err.Error()))
			continue
		}
		charCount := len(strings.TrimSpace(text))
		charsPerPage = append(charsPerPage, charCount)
		if charCount > 100 {
			result.HasText = true
		}
		if detectTables(text) {
			result.HasTables = true
		}
	}

	if len(charsPerPage) > 0 {
		total, extractable := 0, 0
		for _, c := range charsPerPage {
			total += c
			if c > 50 {
				extractable++
			}
		}
		result.AvgCharsPerPage = float64(total) / float64(len(charsPerPage))
		result.ExtractabilityRatio = float64(extractable) / float64(len(charsPerPage))
	}

	result.IsScanned = result.ExtractabilityRatio < 0.3

	switch {
	case result.IsScanned:
		result.RecommendedTier = 4
	case result.HasTables:
		// Layout-aware extraction preserves column order in tables.
		result.RecommendedTier = 2
	case result.ExtractabilityRatio > 0.9:
		result.RecommendedTier = 1
	default:
		result.RecommendedTier = 2
	}

	return result
}

// PDFExtractor is the tier-1 extractor: native text via MuPDF.
type PDFExtractor struct {
	maxPages int
}

// NewPDFExtractor creates a tier-1 PDF extractor. maxPages ≤ 0 means no cap.
func NewPDFExtractor(maxPages int) *PDFExtractor {
	return &PDFExtractor{maxPages: maxPages}
}

// Extract pulls native text from each page and assembles a Document.
func (e *PDFExtractor) Extract(content []byte, documentID uuid.UUID, filename string) (*Document, error) {
	start := time.Now()

	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, classifyPDFOpenError(err, filename)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, ragerr.NewExtraction(400, "PDF has no pages").
			WithDetail("filename", filename)
	}
	if e.maxPages > 0 && pageCount > e.maxPages {
		pageCount = e.maxPages
	}

	hasTables := false
	pages := make([]Page, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		rawText, err := doc.Text(pageNum)
		if err != nil {
			// Keep the page as empty rather than failing the document.
			page := buildPage(pageNum, "", 0)
			page.ConfidenceScore = 0.0
			pages = append(pages, page)
			continue
		}
		page := buildPage(pageNum, rawText, strings.Count(rawText, "\n")+1)
		if page.IsEmpty {
			page.ConfidenceScore = 0.5
		}

		// Tables confuse naive text order, so flag them with a reduced
		// confidence; the HTML rendering carries font sizes for the
		// section-title heuristic.
		if !page.IsEmpty && detectTables(rawText) {
			page.ConfidenceScore = 0.9
			hasTables = true
		}
		if html, htmlErr := doc.HTML(pageNum, false); htmlErr == nil {
			if title := sectionTitleFromHTML(html, sectionTitleMinFontSize); title != "" {
				page.SectionTitle = title
			}
		}
		pages = append(pages, page)
	}

	var normalizedAll []string
	for _, p := range pages {
		if !p.IsEmpty {
			normalizedAll = append(normalizedAll, p.NormalizedText)
		}
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

	extractability := 0.0
	if len(pages) > 0 {
		extractability = float64(len(pages)-emptyPages) / float64(len(pages))
	}
	avgChars := 0.0
	if len(pages) > 0 {
		avgChars = float64(totalChars) / float64(len(pages))
	}

	return &Document{
		DocumentID: documentID,
		Filename:   filename,
		Format:     string(FormatPDF),
		Language:   language,
		TotalPages: len(pages),
		Pages:      pages,
		ExtractionMetadata: map[string]interface{}{
			"total_words":          totalWords,
			"total_chars":          totalChars,
			"empty_pages":          emptyPages,
			"non_empty_pages":      len(pages) - emptyPages,
			"extractability_ratio": extractability,
			"avg_chars_per_page":   avgChars,
			"is_likely_scanned":    extractability < 0.3,
			"has_tables":           hasTables,
		},
		DurationMS: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// LayoutExtractor is the tier-2 extractor. It renders each page as
// structured HTML and flattens it, which preserves reading order better
// than raw text extraction on multi-column and table-heavy layouts.
type LayoutExtractor struct {
	maxPages int
}

// NewLayoutExtractor creates a tier-2 extractor.
func NewLayoutExtractor(maxPages int) *LayoutExtractor {
	return &LayoutExtractor{maxPages: maxPages}
}

// Extract implements tierExtractor.
func (e *LayoutExtractor) Extract(content []byte, documentID uuid.UUID, filename string) (*Document, error) {
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

	pages := make([]Page, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		html, err := doc.HTML(pageNum, false)
		if err != nil {
			page := buildPage(pageNum, "", 0)
			page.ConfidenceScore = 0.0
			pages = append(pages, page)
			continue
		}
		rawText := stripTags(html)
		page := buildPage(pageNum, rawText, strings.Count(rawText, "\n")+1)
		page.ConfidenceScore = 0.9
		pages = append(pages, page)
	}

	return assemblePDFDocument(documentID, filename, pages, start), nil
}

// RemoteParseExtractor is the tier-3 extractor: it submits the PDF to a
// remote parsing service and maps the returned page texts.
type RemoteParseExtractor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteParseExtractor creates a tier-3 extractor. A nil client gets a
// default with a 120s timeout.
func NewRemoteParseExtractor(baseURL, apiKey string, client *http.Client) *RemoteParseExtractor {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &RemoteParseExtractor{baseURL: baseURL, apiKey: apiKey, client: client}
}

type remoteParseResponse struct {
	Pages []struct {
		Text string `json:"text"`
	} `json:"pages"`
	Language string `json:"language"`
}

// Extract implements tierExtractor.
func (e *RemoteParseExtractor) Extract(content []byte, documentID uuid.UUID, filename string) (*Document, error) {
	start := time.Now()

	if e.baseURL == "" || e.apiKey == "" {
		return nil, ragerr.NewExtraction(500, "remote parse tier is not configured").
			WithDetail("filename", filename)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(e.baseURL, "/")+"/v1/parse", bytes.NewReader(content))
	if err != nil {
		return nil, ragerr.NewExtraction(500, "remote parse request: "+err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Filename", filename)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ragerr.NewExtraction(500, "remote parse call failed: "+err.Error()).
			WithDetail("filename", filename)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ragerr.NewExtraction(500,
			fmt.Sprintf("remote parse returned status %d", resp.StatusCode)).
			WithDetail("filename", filename)
	}

	var parsed remoteParseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ragerr.NewExtraction(500, "remote parse decode: "+err.Error())
	}

	pages := make([]Page, 0, len(parsed.Pages))
	for i, p := range parsed.Pages {
		page := buildPage(i, p.Text, strings.Count(p.Text, "\n")+1)
		page.ConfidenceScore = 0.95
		pages = append(pages, page)
	}

	doc := assemblePDFDocument(documentID, filename, pages, start)
	if parsed.Language != "" {
		doc.Language = parsed.Language
		for i := range doc.Pages {
			doc.Pages[i].Language = parsed.Language
		}
	}
	return doc, nil
}

// DefaultOCRTimeout bounds one document's OCR pass wall-clock time.
const DefaultOCRTimeout = 120 * time.Second

// OCRExtractor is the tier-4 extractor: it renders each page to an image
// and runs the tesseract binary over it, under a per-document deadline.
type OCRExtractor struct {
	dpi      int
	lang     string
	maxPages int
	timeout  time.Duration
}

// NewOCRExtractor creates a tier-4 extractor. A zero timeout gets the
// default.
func NewOCRExtractor(dpi int, lang string, maxPages int, timeout time.Duration) *OCRExtractor {
	if dpi <= 0 {
		dpi = 300
	}
	if lang == "" {
		lang = "eng"
	}
	if timeout == 0 {
		timeout = DefaultOCRTimeout
	}
	return &OCRExtractor{dpi: dpi, lang: lang, maxPages: maxPages, timeout: timeout}
}

// Extract implements tierExtractor.
func (e *OCRExtractor) Extract(content []byte, documentID uuid.UUID, filename string) (*Document, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if ctx.Err() != nil {
		return nil, e.timeoutError(filename, start)
	}

	if _, err := exec.LookPath("tesseract"); err != nil {
		return nil, ragerr.NewExtraction(500, "tesseract binary not available").
			WithDetail("filename", filename)
	}

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

	tempDir, err := os.MkdirTemp("", "rag-ocr-*")
	if err != nil {
		return nil, ragerr.NewExtraction(500, "create temp directory: "+err.Error())
	}
	defer os.RemoveAll(tempDir)

	pages := make([]Page, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		if ctx.Err() != nil {
			return nil, e.timeoutError(filename, start)
		}

		img, err := doc.ImageDPI(pageNum, float64(e.dpi))
		if err != nil {
			page := buildPage(pageNum, "", 0)
			page.ConfidenceScore = 0.0
			pages = append(pages, page)
			continue
		}

		imgPath := filepath.Join(tempDir, fmt.Sprintf("page_%03d.png", pageNum))
		f, err := os.Create(imgPath)
		if err != nil {
			return nil, ragerr.NewExtraction(500, "write page image: "+err.Error())
		}
		encodeErr := png.Encode(f, img)
		f.Close()
		if encodeErr != nil {
			return nil, ragerr.NewExtraction(500, "encode page image: "+encodeErr.Error())
		}

		out, err := exec.CommandContext(ctx, "tesseract", imgPath, "stdout", "-l", e.lang).Output()
		if err != nil {
			if ctx.Err() != nil {
				return nil, e.timeoutError(filename, start)
			}
			page := buildPage(pageNum, "", 0)
			page.ConfidenceScore = 0.0
			pages = append(pages, page)
			continue
		}

		rawText := string(out)
		page := buildPage(pageNum, rawText, strings.Count(rawText, "\n")+1)
		page.ConfidenceScore = 0.7 // OCR output is inherently noisier
		pages = append(pages, page)
	}

	result := assemblePDFDocument(documentID, filename, pages, start)
	result.ExtractionMetadata["ocr_dpi"] = e.dpi
	result.ExtractionMetadata["ocr_lang"] = e.lang
	return result, nil
}

func (e *OCRExtractor) timeoutError(filename string, start time.Time) error {
	return ragerr.New(408, "timeout", "OCR extraction exceeded its time limit").
		WithDetail("filename", filename).
		WithDetail("timeout_seconds", int(e.timeout.Seconds())).
		WithDetail("elapsed_ms", float64(time.Since(start))/float64(time.Millisecond))
}

// assemblePDFDocument computes document-level language and metrics shared
// by all PDF tiers.
func assemblePDFDocument(documentID uuid.UUID, filename string, pages []Page, start time.Time) *Document {
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

	return &Document{
		DocumentID: documentID,
		Filename:   filename,
		Format:     string(FormatPDF),
		Language:   language,
		TotalPages: len(pages),
		Pages:      pages,
		ExtractionMetadata: map[string]interface{}{
			"total_words":     totalWords,
			"total_chars":     totalChars,
			"empty_pages":     emptyPages,
			"non_empty_pages": len(pages) - emptyPages,
		},
		DurationMS: float64(time.Since(start)) / float64(time.Millisecond),
	}
}

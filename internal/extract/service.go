package extract

import (
	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/observability"
)

// Service routes uploaded files through format detection to the matching
// extractor.
type Service struct {
	text     TextExtractor
	markdown MarkdownExtractor
	pdf      *PDFPipeline
	logger   *observability.Logger
}

// NewService creates an extraction service with a configured PDF pipeline.
func NewService(pdfCfg PDFPipelineConfig, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		pdf:    NewPDFPipeline(pdfCfg, logger),
		logger: logger,
	}
}

// PDFPipeline exposes the pipeline for diagnostics.
func (s *Service) PDFPipeline() *PDFPipeline {
	return s.pdf
}

// Extract detects the file format and produces a Document.
func (s *Service) Extract(filename string, content []byte, documentID uuid.UUID) (*Document, error) {
	s.logger.Info().
		Str("filename", filename).
		Str("document_id", documentID.String()).
		Msg("extraction_started")

	format, err := DetectFormat(filename, content)
	if err != nil {
		return nil, err
	}

	var doc *Document
	switch format {
	case FormatPDF:
		result, perr := s.pdf.Extract(content, documentID, filename, 0)
		if perr != nil {
			return nil, perr
		}
		doc = result.Document
		doc.ExtractionMetadata["tier_used"] = result.TierUsed
		doc.ExtractionMetadata["tier_name"] = result.TierName
	case FormatText:
		doc, err = s.text.Extract(content, documentID, filename)
	case FormatMarkdown:
		doc, err = s.markdown.Extract(content, documentID, filename)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("filename", filename).
		Str("document_id", documentID.String()).
		Str("format", doc.Format).
		Int("total_pages", doc.TotalPages).
		Str("language", doc.Language).
		Float64("duration_ms", doc.DurationMS).
		Msg("extraction_completed")

	return doc, nil
}

package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// PDFPipelineConfig controls tier availability and routing behavior.
type PDFPipelineConfig struct {
	Tier1Enabled bool
	Tier2Enabled bool
	Tier3Enabled bool
	Tier3BaseURL string
	Tier3APIKey  string
	Tier4Enabled bool
	Tier4DPI     int
	Tier4Lang    string
	Tier4Timeout time.Duration

	AutoFallback            bool
	ExtractabilityThreshold float64
	MaxPages                int
}

// DefaultPDFPipelineConfig enables only the native-text tier.
func DefaultPDFPipelineConfig() PDFPipelineConfig {
	return PDFPipelineConfig{
		Tier1Enabled:            true,
		Tier4DPI:                300,
		Tier4Lang:               "eng",
		Tier4Timeout:            DefaultOCRTimeout,
		AutoFallback:            true,
		ExtractabilityThreshold: 0.5,
		MaxPages:                1000,
	}
}

// PipelineResult is the outcome of tiered PDF extraction.
type PipelineResult struct {
	Document          *Document
	TierUsed          int
	TierName          string
	FallbackAttempted bool
	FallbackReason    string
	Analysis          PDFAnalysis
	DurationMS        float64
}

// tierExtractor is one extraction strategy in the pipeline.
type tierExtractor interface {
	Extract(content []byte, documentID uuid.UUID, filename string) (*Document, error)
}

// PDFPipeline routes PDFs across four increasingly expensive extraction
// tiers based on pre-analysis, with optional automatic fallback:
//
//	1 — native text (fast, searchable PDFs)
//	2 — layout-aware text (complex layouts)
//	3 — remote parse API (premium)
//	4 — OCR (scanned documents)
type PDFPipeline struct {
	cfg    PDFPipelineConfig
	logger *observability.Logger

	tier1 tierExtractor
	tier2 tierExtractor
	tier3 tierExtractor
	tier4 tierExtractor
}

var tierNames = map[int]string{
	1: "native_text",
	2: "layout",
	3: "remote_parse",
	4: "ocr",
}

// NewPDFPipeline creates a pipeline with extractors built from cfg.
func NewPDFPipeline(cfg PDFPipelineConfig, logger *observability.Logger) *PDFPipeline {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &PDFPipeline{
		cfg:    cfg,
		logger: logger,
		tier1:  NewPDFExtractor(cfg.MaxPages),
		tier2:  NewLayoutExtractor(cfg.MaxPages),
		tier3:  NewRemoteParseExtractor(cfg.Tier3BaseURL, cfg.Tier3APIKey, nil),
		tier4:  NewOCRExtractor(cfg.Tier4DPI, cfg.Tier4Lang, cfg.MaxPages, cfg.Tier4Timeout),
	}
}

// Extract analyzes the PDF, selects a tier (or honors forceTier in 1..4),
// and runs extraction with fallback across the remaining enabled tiers.
func (p *PDFPipeline) Extract(content []byte, documentID uuid.UUID, filename string, forceTier int) (*PipelineResult, error) {
	start := time.Now()

	analysis := AnalyzePDF(content, filename)

	targetTier := forceTier
	if targetTier < 1 || targetTier > 4 {
		targetTier = p.selectTier(analysis, filename)
	} else {
		p.logger.Info().
			Str("filename", filename).
			Int("forced_tier", targetTier).
			Msg("pdf_pipeline_forced_tier")
	}

	result, err := p.executeWithFallback(content, documentID, filename, targetTier)
	if err != nil {
		return nil, err
	}

	result.Analysis = analysis
	result.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)

	p.logger.Info().
		Str("filename", filename).
		Str("document_id", documentID.String()).
		Int("tier_used", result.TierUsed).
		Str("tier_name", result.TierName).
		Bool("fallback_attempted", result.FallbackAttempted).
		Float64("pipeline_duration_ms", result.DurationMS).
		Msg("pdf_pipeline_completed")

	return result, nil
}

// selectTier picks the best enabled tier for the analyzed document.
func (p *PDFPipeline) selectTier(analysis PDFAnalysis, filename string) int {
	recommended := analysis.RecommendedTier

	tier := recommended
	if !p.tierEnabled(tier) {
		if p.cfg.Tier1Enabled {
			tier = 1
		} else if p.cfg.Tier4Enabled {
			tier = 4
		} else {
			tier = 1 // tier 1 is the floor even when marked disabled
		}
	}

	p.logger.Info().
		Str("filename", filename).
		Int("recommended_tier", recommended).
		Int("selected_tier", tier).
		Float64("extractability_ratio", analysis.ExtractabilityRatio).
		Bool("is_scanned", analysis.IsScanned).
		Msg("pdf_pipeline_tier_selected")

	return tier
}

func (p *PDFPipeline) tierEnabled(tier int) bool {
	switch tier {
	case 1:
		return p.cfg.Tier1Enabled
	case 2:
		return p.cfg.Tier2Enabled
	case 3:
		return p.cfg.Tier3Enabled
	case 4:
		return p.cfg.Tier4Enabled
	}
	return false
}

func (p *PDFPipeline) extractor(tier int) tierExtractor {
	switch tier {
	case 1:
		return p.tier1
	case 2:
		return p.tier2
	case 3:
		return p.tier3
	case 4:
		return p.tier4
	}
	return nil
}

func (p *PDFPipeline) executeWithFallback(content []byte, documentID uuid.UUID, filename string, targetTier int) (*PipelineResult, error) {
	doc, err := p.extractor(targetTier).Extract(content, documentID, filename)
	if err == nil {
		return &PipelineResult{
			Document: doc,
			TierUsed: targetTier,
			TierName: tierNames[targetTier],
		}, nil
	}

	if !p.cfg.AutoFallback {
		return nil, err
	}

	fallbackReason := err.Error()
	if len(fallbackReason) > 100 {
		fallbackReason = fallbackReason[:100]
	}
	p.logger.Warn().
		Str("filename", filename).
		Int("failed_tier", targetTier).
		Str("error", fallbackReason).
		Msg("pdf_pipeline_tier_failed")

	attempted := []int{targetTier}
	for _, tier := range p.fallbackOrder(targetTier) {
		attempted = append(attempted, tier)
		doc, err := p.extractor(tier).Extract(content, documentID, filename)
		if err != nil {
			continue
		}
		return &PipelineResult{
			Document:          doc,
			TierUsed:          tier,
			TierName:          tierNames[tier],
			FallbackAttempted: true,
			FallbackReason:    fallbackReason,
		}, nil
	}

	return nil, ragerr.NewExtraction(500, fmt.Sprintf("All extraction tiers failed for %s", filename)).
		WithDetail("attempted_tiers", attempted).
		WithDetail("original_error", fallbackReason)
}

// fallbackOrder lists the remaining enabled tiers, cheapest first.
func (p *PDFPipeline) fallbackOrder(failedTier int) []int {
	var order []int
	for tier := 1; tier <= 4; tier++ {
		if tier == failedTier || !p.tierEnabled(tier) {
			continue
		}
		order = append(order, tier)
	}
	return order
}

// AvailableTiers describes the pipeline tiers for diagnostics endpoints.
func (p *PDFPipeline) AvailableTiers() map[int]map[string]interface{} {
	descriptions := map[int]string{
		1: "Fast native text extraction for searchable PDFs",
		2: "Layout-aware extraction for complex page structures",
		3: "Remote parse API for premium documents",
		4: "OCR fallback for scanned documents",
	}
	out := make(map[int]map[string]interface{}, 4)
	for tier := 1; tier <= 4; tier++ {
		out[tier] = map[string]interface{}{
			"name":        tierNames[tier],
			"enabled":     p.tierEnabled(tier),
			"description": descriptions[tier],
		}
	}
	return out
}

// stripTags removes HTML/XML tags, used by the layout extractor when
// flattening structured page output.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune('\n')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

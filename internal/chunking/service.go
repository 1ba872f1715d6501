package chunking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/extract"
	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Service chunks extracted documents page by page, assigning global chunk
// indexes and per-chunk quality scores.
type Service struct {
	logger *observability.Logger
}

// NewService creates a chunking service.
func NewService(logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{logger: logger}
}

// splitter is the common surface of both chunkers.
type splitter interface {
	Split(text string) []string
}

// ChunkDocument splits every non-empty page of doc according to cfg.
// Empty pages are skipped and counted.
func (s *Service) ChunkDocument(doc *extract.Document, cfg Config) (*Result, error) {
	start := time.Now()

	sp, err := s.newSplitter(cfg)
	if err != nil {
		return nil, err
	}

	var (
		chunks          []Chunk
		skippedPages    int
		chunkIndex      int
		discardedChunks int
	)

	for _, page := range doc.Pages {
		if page.IsEmpty {
			skippedPages++
			continue
		}

		// Chunks come back in reading order, so a forward scan recovers
		// each one's character offsets even under window overlap.
		searchFrom := 0
		for _, content := range sp.Split(page.NormalizedText) {
			start := searchFrom
			if idx := strings.Index(page.NormalizedText[searchFrom:], content); idx >= 0 {
				start = searchFrom + idx
				searchFrom = start + 1
			}
			end := start + len(content)

			if cfg.MinChunkChars > 0 && len(content) < cfg.MinChunkChars {
				discardedChunks++
				continue
			}
			if cfg.MaxChunkChars > 0 && len(content) > cfg.MaxChunkChars {
				content = content[:cfg.MaxChunkChars]
				end = start + cfg.MaxChunkChars
			}

			words := len(strings.Fields(content))
			tokens := EstimateTokens(words)

			chunks = append(chunks, Chunk{
				ID:           uuid.New(),
				DocumentID:   doc.DocumentID,
				ChunkIndex:   chunkIndex,
				Content:      content,
				TokenCount:   tokens,
				CharCount:    len(content),
				QualityScore: QualityScore(tokens),
				Metadata: Metadata{
					PageNumber:     page.PageNumber,
					SectionTitle:   page.SectionTitle,
					SourceFilename: doc.Filename,
					Language:       page.Language,
					PositionInPage: Position{Start: start, End: end},
				},
			})
			chunkIndex++
		}
	}

	durationMS := float64(time.Since(start)) / float64(time.Millisecond)

	minTokens, maxTokens, totalTokens := 0, 0, 0
	for i, c := range chunks {
		if i == 0 || c.TokenCount < minTokens {
			minTokens = c.TokenCount
		}
		if c.TokenCount > maxTokens {
			maxTokens = c.TokenCount
		}
		totalTokens += c.TokenCount
	}
	avgTokens := 0.0
	if len(chunks) > 0 {
		avgTokens = float64(totalTokens) / float64(len(chunks))
	}

	s.logger.Info().
		Str("document_id", doc.DocumentID.String()).
		Str("strategy", cfg.Strategy).
		Int("chunks", len(chunks)).
		Int("skipped_pages", skippedPages).
		Float64("duration_ms", durationMS).
		Msg("chunking_completed")

	return &Result{
		Chunks:       chunks,
		TotalChunks:  len(chunks),
		SkippedPages: skippedPages,
		Metrics: map[string]interface{}{
			"total_chunks":     len(chunks),
			"skipped_pages":    skippedPages,
			"discarded_chunks": discardedChunks,
			"min_chunk_tokens": minTokens,
			"max_chunk_tokens": maxTokens,
			"avg_chunk_tokens": avgTokens,
		},
		DurationMS: durationMS,
	}, nil
}

func (s *Service) newSplitter(cfg Config) (splitter, error) {
	switch cfg.Strategy {
	case StrategySlidingWindow:
		return NewSlidingWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	case StrategyRecursive, "", "semantic":
		// "semantic" is accepted as an alias for the recursive strategy.
		return NewRecursiveChunker(cfg.ChunkSize, nil)
	default:
		return nil, ragerr.NewChunking("unknown chunking strategy: " + cfg.Strategy)
	}
}

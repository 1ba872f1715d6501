// Package chunking splits normalized documents into retrieval units with
// provenance metadata and quality scores.
package chunking

import (
	"github.com/google/uuid"
)

// Strategy names accepted by the service.
const (
	StrategyRecursive     = "recursive"
	StrategySlidingWindow = "sliding_window"
)

// ApproxCharsPerToken translates token budgets into character budgets for
// the character-based chunkers.
const ApproxCharsPerToken = 4

// Position is a character-offset range within a page's normalized text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Metadata carries chunk provenance.
type Metadata struct {
	PageNumber     int      `json:"page_number"`
	SectionTitle   string   `json:"section_title,omitempty"`
	SourceFilename string   `json:"source_filename,omitempty"`
	Language       string   `json:"language,omitempty"`
	PositionInPage Position `json:"position_in_page"`
}

// Chunk is the core retrieval unit flowing through the system.
type Chunk struct {
	ID           uuid.UUID `json:"id"`
	DocumentID   uuid.UUID `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	TokenCount   int       `json:"token_count"`
	CharCount    int       `json:"char_count"`
	QualityScore float64   `json:"quality_score"`
	Metadata     Metadata  `json:"metadata"`
}

// Config controls a chunking run. Sizes are in characters.
// MinChunkChars discards undersized chunks and MaxChunkChars truncates
// oversized ones; zero disables the corresponding limit.
type Config struct {
	Strategy      string
	ChunkSize     int
	ChunkOverlap  int
	MinChunkChars int
	MaxChunkChars int
}

// ConfigFromTokens converts a token-based configuration to characters.
func ConfigFromTokens(strategy string, sizeTokens, overlapTokens int) Config {
	return Config{
		Strategy:     strategy,
		ChunkSize:    sizeTokens * ApproxCharsPerToken,
		ChunkOverlap: overlapTokens * ApproxCharsPerToken,
	}
}

// Result is the output of chunking one document.
type Result struct {
	Chunks          []Chunk                `json:"chunks"`
	TotalChunks     int                    `json:"total_chunks"`
	SkippedPages    int                    `json:"skipped_pages"`
	Metrics         map[string]interface{} `json:"metrics"`
	DurationMS      float64                `json:"chunking_duration_ms"`
}

package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/chunking"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// DefaultResponseBudget is the number of tokens reserved for the model's
// answer.
const DefaultResponseBudget = 1500

const systemPrompt = "You are a helpful, accurate, and concise assistant.\n\n" +
	"When answering:\n" +
	"1. Use ONLY the provided context to form your answer.\n" +
	"2. Cite your sources using [Source N] markers.\n" +
	"3. If the context does not contain the answer, say so explicitly.\n" +
	"4. Be precise and avoid generalizations."

const noContextSection = "---RETRIEVED CONTEXT---\n" +
	"No relevant context was retrieved. Answer based on general knowledge only if appropriate.\n"

// contextWindowByModel maps known model identifiers to their context
// window sizes. Unknown models fall back to a conservative window.
var contextWindowByModel = map[string]int{
	"gpt-5-nano": 128000,
}

const defaultContextWindow = 8192

func contextWindowFor(model string) int {
	if w, ok := contextWindowByModel[model]; ok {
		return w
	}
	return defaultContextWindow
}

// CitationMeta is the prompt-side record for one [Source N] marker.
type CitationMeta struct {
	ChunkID         uuid.UUID
	DocumentID      uuid.UUID
	SourceFile      string
	Page            int
	Section         string
	SimilarityScore float64
	Preview         string
}

// Prompt is the assembled chat prompt plus its citation map and metrics.
// CitationMap keys are dense 1..N and match the [Source N] markers
// present in UserMessage.
type Prompt struct {
	SystemMessage     string
	UserMessage       string
	CitationMap       map[int]CitationMeta
	TokenMetrics      map[string]int
	ChunksIncluded    int
	ChunksTruncated   int
	AssemblyLatencyMS float64
}

// PromptBuilder packs retrieved chunks into a token-budgeted prompt.
type PromptBuilder struct {
	Model          string
	ResponseBudget int
}

// NewPromptBuilder creates a builder with defaults applied.
func NewPromptBuilder(model string, responseBudget int) *PromptBuilder {
	if model == "" {
		model = "gpt-5-nano"
	}
	if responseBudget <= 0 {
		responseBudget = DefaultResponseBudget
	}
	return &PromptBuilder{Model: model, ResponseBudget: responseBudget}
}

// Build assembles the system and user messages for queryText over the
// retrieved chunks. Chunks are packed best-first until the context token
// budget is exhausted; the first chunk that would overflow has its
// content truncated with a trailing "[...]" marker when its header and
// at least one word still fit, and is dropped otherwise. Packing stops
// either way.
func (b *PromptBuilder) Build(queryText string, chunks []RetrievedChunk) (*Prompt, error) {
	start := time.Now()

	systemTokens := chunking.CountTokens(systemPrompt)
	queryTokens := chunking.CountTokens(queryText)
	contextWindow := contextWindowFor(b.Model)

	totalFixed := systemTokens + queryTokens + b.ResponseBudget
	if totalFixed > contextWindow {
		return nil, ragerr.NewBadRequest("token budget exceeds model context window").
			WithDetail("context_window", contextWindow).
			WithDetail("total_used", totalFixed)
	}
	availableForContext := contextWindow - totalFixed

	contextStr, citationMap, included, truncated := b.assembleContext(chunks, availableForContext)

	var userMessage string
	if contextStr != "" {
		userMessage = "---RETRIEVED CONTEXT---\n" + contextStr + "\n" +
			"\n---USER QUERY---\n" + queryText
	} else {
		userMessage = noContextSection + "\n---USER QUERY---\n" + queryText
	}

	contextTokens := 0
	if contextStr != "" {
		contextTokens = chunking.CountTokens(contextStr)
	}

	return &Prompt{
		SystemMessage: systemPrompt,
		UserMessage:   userMessage,
		CitationMap:   citationMap,
		TokenMetrics: map[string]int{
			"system_prompt":         systemTokens,
			"query":                 queryTokens,
			"history":               0,
			"examples":              0,
			"response_reserved":     b.ResponseBudget,
			"available_for_context": availableForContext,
			"total_used":            totalFixed,
			"context_window":        contextWindow,
			"context_tokens":        contextTokens,
			"chunks_included":       included,
			"chunks_truncated":      truncated,
		},
		ChunksIncluded:    included,
		ChunksTruncated:   truncated,
		AssemblyLatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

func (b *PromptBuilder) assembleContext(chunks []RetrievedChunk, availableTokens int) (string, map[int]CitationMeta, int, int) {
	citationMap := make(map[int]CitationMeta)
	if availableTokens <= 0 || len(chunks) == 0 {
		return "", citationMap, 0, 0
	}

	sorted := make([]RetrievedChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		return sorted[i].SimilarityScore > sorted[j].SimilarityScore
	})

	remaining := availableTokens
	var parts []string
	included := 0
	truncated := 0

	for _, chunk := range sorted {
		citationIndex := included + 1
		formatted := formatChunk(chunk, citationIndex)
		tokens := chunking.CountTokens(formatted)

		if tokens <= remaining {
			parts = append(parts, formatted)
			citationMap[citationIndex] = citationMetaFor(chunk)
			remaining -= tokens
			included++
			continue
		}

		if remaining > 0 {
			// Only the content after the header line may be truncated: a
			// registered citation whose [Source N] marker was cut from the
			// prompt would orphan the citation map entry. One token is
			// reserved for the trailing "[...]" marker.
			headerEnd := strings.IndexByte(formatted, '\n')
			header := formatted[:headerEnd+1]
			keep := remaining - chunking.CountTokens(header) - 1
			words := strings.Fields(chunk.Content)
			if keep >= 1 && len(words) > 0 {
				if keep > len(words) {
					keep = len(words)
				}
				parts = append(parts, header+strings.Join(words[:keep], " ")+" [...]\n")
				citationMap[citationIndex] = citationMetaFor(chunk)
				included++
				truncated++
			}
		}
		break
	}

	return strings.Join(parts, ""), citationMap, included, truncated
}

// formatChunk renders a chunk as a source block, e.g.
//
//	[Source 1] File: policy.pdf, Page 3, Introduction
//	chunk text...
func formatChunk(chunk RetrievedChunk, citationIndex int) string {
	var header []string

	sourceFile := metadataString(chunk.Metadata, "source_file")
	if sourceFile == "" {
		sourceFile = metadataString(chunk.Metadata, "filename")
	}
	if sourceFile == "" {
		sourceFile = "unknown"
	}
	header = append(header, "File: "+sourceFile)

	if page, ok := metadataInt(chunk.Metadata, "page"); ok {
		header = append(header, fmt.Sprintf("Page %d", page))
	}
	if section := metadataString(chunk.Metadata, "section"); section != "" {
		header = append(header, section)
	}

	return fmt.Sprintf("[Source %d] ", citationIndex) + strings.Join(header, ", ") + "\n" + chunk.Content + "\n"
}

const citationPreviewLen = 150

func citationMetaFor(chunk RetrievedChunk) CitationMeta {
	preview := chunk.Content
	if len(preview) > citationPreviewLen {
		preview = preview[:citationPreviewLen]
	}

	sourceFile := metadataString(chunk.Metadata, "source_file")
	if sourceFile == "" {
		sourceFile = metadataString(chunk.Metadata, "filename")
	}
	page, _ := metadataInt(chunk.Metadata, "page")

	return CitationMeta{
		ChunkID:         chunk.ChunkID,
		DocumentID:      chunk.DocumentID,
		SourceFile:      sourceFile,
		Page:            page,
		Section:         metadataString(chunk.Metadata, "section"),
		SimilarityScore: chunk.SimilarityScore,
		Preview:         preview,
	}
}

func metadataString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func metadataInt(m map[string]interface{}, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

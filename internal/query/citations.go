package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var citationPattern = regexp.MustCompile(`\[Source (\d+)\]`)

const usedChunkPreviewLen = 100

// ExtractCitations returns the distinct source indices referenced by
// [Source N] markers in answerText, in ascending order. Zero and
// malformed indices are ignored.
func ExtractCitations(answerText string) []int {
	seen := make(map[int]bool)
	for _, match := range citationPattern.FindAllStringSubmatch(answerText, -1) {
		index, err := strconv.Atoi(match[1])
		if err != nil || index <= 0 {
			continue
		}
		seen[index] = true
	}

	indices := make([]int, 0, len(seen))
	for index := range seen {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// ProcessedAnswer is the post-processed generation output.
type ProcessedAnswer struct {
	Answer     string
	Citations  []Citation
	UsedChunks []UsedChunk
	Confidence float64
	Warnings   []string
}

// ProcessAnswer validates the [Source N] markers in the raw answer
// against the prompt's citation map and builds the used-chunk report.
// Markers that reference no mapped source produce warnings rather than
// errors. Confidence is the mean similarity of the used chunks.
func ProcessAnswer(rawAnswer string, citationMap map[int]CitationMeta, chunks []RetrievedChunk) *ProcessedAnswer {
	answer := strings.TrimSpace(rawAnswer)

	chunkByID := make(map[uuid.UUID]RetrievedChunk, len(chunks))
	for _, chunk := range chunks {
		chunkByID[chunk.ChunkID] = chunk
	}

	var (
		citations []Citation
		warnings  []string
	)
	for _, index := range ExtractCitations(answer) {
		meta, ok := citationMap[index]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Missing citation for [Source %d]", index))
			continue
		}

		preview := meta.Preview
		if preview == "" {
			if chunk, ok := chunkByID[meta.ChunkID]; ok {
				preview = chunk.Content
				if len(preview) > citationPreviewLen {
					preview = preview[:citationPreviewLen]
				}
			}
		}

		citations = append(citations, Citation{
			SourceIndex:     index,
			ChunkID:         meta.ChunkID,
			DocumentID:      meta.DocumentID,
			SourceFile:      meta.SourceFile,
			Page:            meta.Page,
			SimilarityScore: meta.SimilarityScore,
			Preview:         preview,
		})
	}

	// Every chunk placed into the prompt context counts as used, each
	// chunk at most once.
	indices := make([]int, 0, len(citationMap))
	for index := range citationMap {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	var usedChunks []UsedChunk
	seen := make(map[uuid.UUID]bool)
	for _, index := range indices {
		meta := citationMap[index]
		if seen[meta.ChunkID] {
			continue
		}
		seen[meta.ChunkID] = true

		used := UsedChunk{
			ChunkID:         meta.ChunkID,
			SimilarityScore: meta.SimilarityScore,
		}
		if chunk, ok := chunkByID[meta.ChunkID]; ok {
			used.Rank = chunk.Rank
			used.SimilarityScore = chunk.SimilarityScore
			used.ContentPreview = chunk.Content
		} else {
			used.ContentPreview = meta.Preview
		}
		if len(used.ContentPreview) > usedChunkPreviewLen {
			used.ContentPreview = used.ContentPreview[:usedChunkPreviewLen]
		}
		usedChunks = append(usedChunks, used)
	}

	confidence := 0.0
	if len(usedChunks) > 0 {
		sum := 0.0
		for _, used := range usedChunks {
			sum += used.SimilarityScore
		}
		confidence = sum / float64(len(usedChunks))
	}

	return &ProcessedAnswer{
		Answer:     answer,
		Citations:  citations,
		UsedChunks: usedChunks,
		Confidence: confidence,
		Warnings:   warnings,
	}
}

package chunking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragworks/rag-engine/internal/extract"
)

func testDocument(docID uuid.UUID) *extract.Document {
	return &extract.Document{
		DocumentID: docID,
		Filename:   "handbook.txt",
		Format:     "txt",
		Language:   "en",
		TotalPages: 3,
		Pages: []extract.Page{
			{
				PageNumber:     1,
				NormalizedText: "the first page talks about onboarding and provides enough words to chunk",
				WordCount:      12,
				Language:       "en",
			},
			{
				PageNumber:     2,
				NormalizedText: "",
				IsEmpty:        true,
			},
			{
				PageNumber:     3,
				NormalizedText: "the third page covers benefits and also provides sufficient content",
				WordCount:      10,
				SectionTitle:   "Benefits",
				Language:       "en",
			},
		},
	}
}

func TestChunkDocument_SkipsEmptyPages(t *testing.T) {
	docID := uuid.New()
	svc := NewService(nil)

	result, err := svc.ChunkDocument(testDocument(docID), Config{Strategy: StrategyRecursive, ChunkSize: 2048})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedPages)
	require.Equal(t, 2, result.TotalChunks)

	first := result.Chunks[0]
	assert.Equal(t, docID, first.DocumentID)
	assert.Equal(t, 0, first.ChunkIndex)
	assert.Equal(t, 1, first.Metadata.PageNumber)
	assert.Equal(t, "handbook.txt", first.Metadata.SourceFilename)
	assert.Equal(t, "en", first.Metadata.Language)

	second := result.Chunks[1]
	assert.Equal(t, 1, second.ChunkIndex)
	assert.Equal(t, 3, second.Metadata.PageNumber)
	assert.Equal(t, "Benefits", second.Metadata.SectionTitle)
}

func TestChunkDocument_TokenAndQualityFields(t *testing.T) {
	svc := NewService(nil)

	result, err := svc.ChunkDocument(testDocument(uuid.New()), Config{Strategy: StrategyRecursive, ChunkSize: 2048})
	require.NoError(t, err)

	// 12 words -> round(12 * 1.3) = 16 estimated tokens.
	first := result.Chunks[0]
	assert.Equal(t, 16, first.TokenCount)
	assert.Equal(t, QualityScore(16), first.QualityScore)
	assert.Equal(t, len(first.Content), first.CharCount)
}

func TestChunkDocument_SemanticAliasesRecursive(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.ChunkDocument(testDocument(uuid.New()), Config{Strategy: "semantic", ChunkSize: 2048})
	assert.NoError(t, err)
}

func TestChunkDocument_UnknownStrategy(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.ChunkDocument(testDocument(uuid.New()), Config{Strategy: "mystery", ChunkSize: 2048})
	assert.Error(t, err)
}

func TestChunkDocument_Metrics(t *testing.T) {
	svc := NewService(nil)
	result, err := svc.ChunkDocument(testDocument(uuid.New()), Config{Strategy: StrategyRecursive, ChunkSize: 2048})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Metrics["total_chunks"])
	assert.Equal(t, 1, result.Metrics["skipped_pages"])
	assert.Equal(t, 13, result.Metrics["min_chunk_tokens"])
	assert.Equal(t, 16, result.Metrics["max_chunk_tokens"])
	assert.InDelta(t, 14.5, result.Metrics["avg_chunk_tokens"].(float64), 1e-9)
}

func TestChunkDocument_PositionOffsets(t *testing.T) {
	svc := NewService(nil)
	doc := testDocument(uuid.New())

	result, err := svc.ChunkDocument(doc, Config{Strategy: StrategyRecursive, ChunkSize: 2048})
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalChunks)

	// Each short page passes through whole, so the chunk spans the page.
	first := result.Chunks[0]
	assert.Equal(t, Position{Start: 0, End: len(doc.Pages[0].NormalizedText)},
		first.Metadata.PositionInPage)
}

func TestChunkDocument_SlidingWindowOffsets(t *testing.T) {
	doc := &extract.Document{
		DocumentID: uuid.New(),
		Filename:   "plain.txt",
		Pages:      []extract.Page{{PageNumber: 1, NormalizedText: "abcdefghij"}},
	}

	svc := NewService(nil)
	result, err := svc.ChunkDocument(doc, Config{
		Strategy: StrategySlidingWindow, ChunkSize: 6, ChunkOverlap: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)

	// Overlapping windows keep their true offsets: step is 4, so the
	// second window starts inside the first.
	assert.Equal(t, "abcdef", result.Chunks[0].Content)
	assert.Equal(t, Position{Start: 0, End: 6}, result.Chunks[0].Metadata.PositionInPage)
	assert.Equal(t, "efghij", result.Chunks[1].Content)
	assert.Equal(t, Position{Start: 4, End: 10}, result.Chunks[1].Metadata.PositionInPage)
}

func TestChunkDocument_SizeLimits(t *testing.T) {
	doc := &extract.Document{
		DocumentID: uuid.New(),
		Filename:   "limits.txt",
		Pages:      []extract.Page{{PageNumber: 1, NormalizedText: "aaaa bbbb cccc x"}},
	}

	svc := NewService(nil)
	result, err := svc.ChunkDocument(doc, Config{
		Strategy:      StrategySlidingWindow,
		ChunkSize:     10,
		MinChunkChars: 7,
		MaxChunkChars: 8,
	})
	require.NoError(t, err)

	// Window [0,10) is truncated to the 8-char cap with its end offset
	// adjusted; window [10,16) is 6 chars and gets discarded.
	require.Len(t, result.Chunks, 1)
	c := result.Chunks[0]
	assert.Equal(t, "aaaa bbb", c.Content)
	assert.Equal(t, 8, c.CharCount)
	assert.Equal(t, Position{Start: 0, End: 8}, c.Metadata.PositionInPage)
	assert.Equal(t, 1, result.Metrics["discarded_chunks"])
}

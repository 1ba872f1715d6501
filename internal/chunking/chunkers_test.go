package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowChunker_Validation(t *testing.T) {
	_, err := NewSlidingWindowChunker(0, 0)
	assert.Error(t, err)

	_, err = NewSlidingWindowChunker(100, -1)
	assert.Error(t, err)

	_, err = NewSlidingWindowChunker(100, 100)
	assert.Error(t, err)

	_, err = NewSlidingWindowChunker(100, 99)
	assert.NoError(t, err)
}

func TestSlidingWindowChunker_WindowsAndOverlap(t *testing.T) {
	c, err := NewSlidingWindowChunker(10, 4)
	require.NoError(t, err)

	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := c.Split(text)

	// step = 6: windows start at 0, 6, 12, 18, 24.
	require.Len(t, chunks, 5)
	assert.Equal(t, "abcdefghij", chunks[0])
	assert.Equal(t, "ghijklmnop", chunks[1])
	assert.Equal(t, "yz", chunks[4])

	// Consecutive windows share the overlap region.
	for i := 1; i < len(chunks)-1; i++ {
		assert.Equal(t, chunks[i-1][6:], chunks[i][:4])
	}
}

func TestSlidingWindowChunker_NoOverlapCoversText(t *testing.T) {
	c, err := NewSlidingWindowChunker(5, 0)
	require.NoError(t, err)

	text := "abcdefghijk"
	chunks := c.Split(text)
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSlidingWindowChunker_DropsWhitespaceWindows(t *testing.T) {
	c, err := NewSlidingWindowChunker(4, 0)
	require.NoError(t, err)

	chunks := c.Split("abcd    efgh")
	assert.Equal(t, []string{"abcd", "efgh"}, chunks)
}

func TestRecursiveChunker_ShortTextPassesThrough(t *testing.T) {
	c, err := NewRecursiveChunker(100, nil)
	require.NoError(t, err)

	chunks := c.Split("a short paragraph.")
	assert.Equal(t, []string{"a short paragraph."}, chunks)
}

func TestRecursiveChunker_SplitsOnParagraphsFirst(t *testing.T) {
	c, err := NewRecursiveChunker(25, nil)
	require.NoError(t, err)

	text := "first paragraph here.\n\nsecond paragraph here."
	chunks := c.Split(text)

	require.Len(t, chunks, 2)
	// The separator stays attached to the preceding segment.
	assert.Equal(t, "first paragraph here.\n\n", chunks[0])
	assert.Equal(t, "second paragraph here.", chunks[1])
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestRecursiveChunker_SentenceSeparatorAttached(t *testing.T) {
	c, err := NewRecursiveChunker(20, nil)
	require.NoError(t, err)

	chunks := c.Split("one sentence. two sentence. three here.")
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(chunk, ".") || strings.HasSuffix(chunk, ". "),
			"chunk %q should end at a boundary", chunk)
	}
}

func TestRecursiveChunker_ReconstructsInput(t *testing.T) {
	c, err := NewRecursiveChunker(30, nil)
	require.NoError(t, err)

	text := "alpha beta gamma delta.\nepsilon zeta eta theta iota kappa.\n\nlambda mu nu xi omicron pi rho sigma tau."
	chunks := c.Split(text)

	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 30)
	}
}

func TestRecursiveChunker_CharWindowFallback(t *testing.T) {
	c, err := NewRecursiveChunker(8, nil)
	require.NoError(t, err)

	// No separator occurs anywhere in the text.
	chunks := c.Split("abcdefghijklmnopqr")
	assert.Equal(t, []string{"abcdefgh", "ijklmnop", "qr"}, chunks)
}

func TestRecursiveChunker_GreedyMerge(t *testing.T) {
	c, err := NewRecursiveChunker(15, nil)
	require.NoError(t, err)

	// Short lines merge until the budget is hit.
	chunks := c.Split("aa\nbb\ncc\ndd\nee\nff\ngg\nhh")
	assert.Equal(t, "aa\nbb\ncc\ndd\nee\n", chunks[0])
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 15)
	}
}

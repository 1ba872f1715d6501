package chunking

import (
	"strings"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// DefaultSeparators is the prioritized list used by the recursive chunker.
var DefaultSeparators = []string{"\n\n", "\n", ".", " "}

// RecursiveChunker splits text on a prioritized separator list, recursing
// on oversized segments with the remaining separators, and falls back to
// character windows when no separator applies. Separators stay attached to
// the preceding segment, so chunks tend to end on punctuation.
type RecursiveChunker struct {
	ChunkSize  int
	Separators []string
}

// NewRecursiveChunker validates the chunk size and applies the default
// separator list when none is given.
func NewRecursiveChunker(chunkSize int, separators []string) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, ragerr.NewChunking("chunk size must be positive")
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveChunker{ChunkSize: chunkSize, Separators: separators}, nil
}

// Split returns chunks of at most ChunkSize characters. Whitespace-only
// chunks are dropped.
func (c *RecursiveChunker) Split(text string) []string {
	raw := c.split(text, c.Separators)
	out := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.ChunkSize {
		return []string{text}
	}

	// First separator that actually occurs decides this level.
	sepIndex := -1
	for i, sep := range separators {
		if strings.Contains(text, sep) {
			sepIndex = i
			break
		}
	}
	if sepIndex == -1 {
		return charWindows(text, c.ChunkSize)
	}

	sep := separators[sepIndex]
	remaining := separators[sepIndex+1:]

	var segments []string
	for _, segment := range strings.SplitAfter(text, sep) {
		if segment == "" {
			continue
		}
		if len(segment) > c.ChunkSize {
			segments = append(segments, c.split(segment, remaining)...)
		} else {
			segments = append(segments, segment)
		}
	}

	return mergeSegments(segments, c.ChunkSize)
}

// mergeSegments greedily packs adjacent segments into chunks of at most
// chunkSize characters, preserving order and content.
func mergeSegments(segments []string, chunkSize int) []string {
	var (
		out     []string
		current strings.Builder
	)
	for _, segment := range segments {
		if current.Len() > 0 && current.Len()+len(segment) > chunkSize {
			out = append(out, current.String())
			current.Reset()
		}
		current.WriteString(segment)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// charWindows slices text into fixed-size character windows.
func charWindows(text string, size int) []string {
	var out []string
	for start := 0; start < len(text); start += size {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[start:end])
	}
	return out
}

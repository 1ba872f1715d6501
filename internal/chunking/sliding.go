package chunking

import (
	"strings"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// SlidingWindowChunker produces fixed-size character windows with overlap.
type SlidingWindowChunker struct {
	ChunkSize int
	Overlap   int
}

// NewSlidingWindowChunker validates the window parameters.
// Overlap must satisfy 0 ≤ overlap < chunkSize.
func NewSlidingWindowChunker(chunkSize, overlap int) (*SlidingWindowChunker, error) {
	if chunkSize <= 0 {
		return nil, ragerr.NewChunking("chunk size must be positive")
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, ragerr.NewChunking("overlap must satisfy 0 <= overlap < chunk_size")
	}
	return &SlidingWindowChunker{ChunkSize: chunkSize, Overlap: overlap}, nil
}

// Split returns windows [start, start+chunkSize); the next window starts
// at start + (chunkSize - overlap). Whitespace-only windows are dropped.
func (c *SlidingWindowChunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	step := c.ChunkSize - c.Overlap
	var out []string
	for start := 0; start < len(text); start += step {
		end := start + c.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]
		if strings.TrimSpace(window) != "" {
			out = append(out, window)
		}
		if end == len(text) {
			break
		}
	}
	return out
}

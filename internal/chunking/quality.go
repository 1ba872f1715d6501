package chunking

import (
	"math"
	"strings"
)

// Quality score shape: too-short chunks carry little context, too-long
// chunks dilute retrieval precision. The plateau is the sweet spot.
const (
	qualityPlateauLow  = 300.0
	qualityPlateauHigh = 800.0
	qualityZeroAt      = 1600.0
)

// CountTokens estimates the token count of text as its whitespace word
// count, with a floor of 1 for any non-empty text.
func CountTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	words := len(strings.Fields(text))
	if words < 1 {
		return 1
	}
	return words
}

// EstimateTokens scales a word count to an approximate LLM token count.
func EstimateTokens(wordCount int) int {
	return int(math.Round(float64(wordCount) * 1.3))
}

// QualityScore maps a chunk's token count onto [0, 1]:
//
//	0 tokens            → 0
//	(0, 300)            → max(0.1, t/300)
//	[300, 800]          → 1.0
//	(800, 1600)         → linear decay to 0
//	≥ 1600              → 0
func QualityScore(tokenCount int) float64 {
	t := float64(tokenCount)
	switch {
	case t <= 0:
		return 0.0
	case t < qualityPlateauLow:
		return math.Max(0.1, t/qualityPlateauLow)
	case t <= qualityPlateauHigh:
		return 1.0
	case t < qualityZeroAt:
		return math.Max(0.0, 1.0-(t-qualityPlateauHigh)/(qualityZeroAt-qualityPlateauHigh))
	default:
		return 0.0
	}
}

// Package guardrails enforces input validation, per-user rate limits, and
// the global query deadline ahead of the expensive pipeline stages.
package guardrails

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Validation limits for the public query surface.
const (
	MinQueryLength = 1
	MaxQueryLength = 5000
	TopKMin        = 1
	TopKMax        = 100
)

// forbiddenPatterns is intentionally conservative; it exists so the
// wiring is in place for future expansion.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)__FORBIDDEN__`),
}

// InputValidator validates query requests before the pipeline runs.
type InputValidator struct{}

// ValidateQueryText rejects empty, oversized, or forbidden query text.
func (InputValidator) ValidateQueryText(query string) error {
	if strings.TrimSpace(query) == "" {
		return ragerr.NewValidation("query", "Query cannot be empty")
	}
	if len(query) > MaxQueryLength {
		return ragerr.NewValidation("query",
			fmt.Sprintf("Query exceeds maximum length of %d characters", MaxQueryLength))
	}
	for _, pattern := range forbiddenPatterns {
		if pattern.MatchString(query) {
			return ragerr.NewValidation("query", "Query contains forbidden content")
		}
	}
	return nil
}

// ValidateTopK rejects top_k values outside [1, 100].
func (InputValidator) ValidateTopK(topK int) error {
	if topK < TopKMin || topK > TopKMax {
		return ragerr.NewValidation("top_k",
			fmt.Sprintf("top_k must be between %d and %d", TopKMin, TopKMax)).
			WithDetail("top_k", topK).
			WithDetail("min", TopKMin).
			WithDetail("max", TopKMax)
	}
	return nil
}

// ValidateRequest validates the combination of query text and top_k.
func (v InputValidator) ValidateRequest(query string, topK int) error {
	if err := v.ValidateQueryText(query); err != nil {
		return err
	}
	return v.ValidateTopK(topK)
}

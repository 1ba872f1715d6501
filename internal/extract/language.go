package extract

import "strings"

// Stopword sets used for lightweight language detection. Good enough to
// distinguish English from French prose without an external model.
var (
	englishStopwords = map[string]struct{}{
		"the": {}, "and": {}, "is": {}, "of": {}, "to": {}, "in": {},
		"this": {}, "that": {}, "with": {}, "for": {}, "are": {}, "it": {},
	}
	frenchStopwords = map[string]struct{}{
		"le": {}, "la": {}, "les": {}, "et": {}, "est": {}, "de": {},
		"un": {}, "une": {}, "dans": {}, "ce": {}, "que": {}, "pour": {},
	}
)

// DetectLanguage returns an ISO 639-1 code for the dominant language of
// text, defaulting to "en". Only the first 500 characters are sampled.
func DetectLanguage(text string) string {
	if text == "" {
		return "en"
	}

	sample := text
	if len(sample) > 500 {
		sample = sample[:500]
	}

	enHits, frHits := 0, 0
	for _, word := range strings.Fields(strings.ToLower(sample)) {
		word = strings.Trim(word, ".,;:!?'\"()")
		if _, ok := englishStopwords[word]; ok {
			enHits++
		}
		if _, ok := frenchStopwords[word]; ok {
			frHits++
		}
	}

	if frHits > enHits {
		return "fr"
	}
	return "en"
}

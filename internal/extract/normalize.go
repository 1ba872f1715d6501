package extract

import "strings"

// Normalize canonicalizes extracted text:
//   - strips C0 control characters except tab, newline, carriage return
//   - converts CRLF and CR line endings to LF
//   - collapses runs of spaces and tabs within each line
//   - trims leading/trailing whitespace per line
//   - drops empty lines
//
// Normalize is idempotent: applying it twice yields the same result.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.ReplaceAll(b.String(), "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")

	lines := strings.Split(cleaned, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		collapsed := strings.Join(strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t'
		}), " ")
		if collapsed == "" {
			continue
		}
		out = append(out, collapsed)
	}

	return strings.Join(out, "\n")
}

// IsEmptyPage reports whether normalized page text carries no usable
// content: whitespace-only, or fewer than three words.
func IsEmptyPage(normalized string) bool {
	trimmed := strings.TrimSpace(normalized)
	if trimmed == "" {
		return true
	}
	return len(splitWords(trimmed)) < 3
}

func splitWords(s string) []string {
	return strings.Fields(s)
}

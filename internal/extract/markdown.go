package extract

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MarkdownExtractor converts markdown bytes into a single-page Document,
// preserving heading structure in the extraction metadata.
type MarkdownExtractor struct{}

type headingEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// Extract parses optional YAML frontmatter, tracks the heading hierarchy,
// strips markdown syntax outside fenced code blocks, and normalizes the
// result.
func (MarkdownExtractor) Extract(content []byte, documentID uuid.UUID, filename string) (*Document, error) {
	start := time.Now()

	text := decodeText(content)
	lines := strings.Split(text, "\n")

	frontmatter := map[string]interface{}{}
	body := lines
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				for _, fm := range lines[1:i] {
					if key, value, ok := strings.Cut(fm, ":"); ok {
						frontmatter[strings.TrimSpace(key)] = strings.TrimSpace(value)
					}
				}
				body = lines[i+1:]
				break
			}
		}
	}

	var (
		sectionTitle string
		cleaned      []string
		hierarchy    []headingEntry
		inCodeBlock  bool
	)

	for _, line := range body {
		stripped := strings.TrimRight(line, "\n")

		if strings.HasPrefix(strings.TrimSpace(stripped), "```") {
			inCodeBlock = !inCodeBlock
			cleaned = append(cleaned, stripped)
			continue
		}
		if inCodeBlock {
			cleaned = append(cleaned, stripped)
			continue
		}

		trimmed := strings.TrimLeft(stripped, " ")
		if strings.HasPrefix(trimmed, "#") {
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			if level > 6 {
				level = 6
			}
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if heading != "" {
				sectionTitle = heading
			}
			cleaned = append(cleaned, heading)
			hierarchy = append(hierarchy, headingEntry{Level: level, Title: heading})
			continue
		}

		cleaned = append(cleaned, stripInline(stripBullet(trimmed)))
	}

	rawText := strings.Join(cleaned, "\n")
	page := buildPage(0, rawText, len(cleaned))
	page.SectionTitle = sectionTitle

	language := DetectLanguage(page.NormalizedText)
	if page.NormalizedText == "" {
		language = DetectLanguage(rawText)
	}
	page.Language = language

	emptyPages := 0
	if page.IsEmpty {
		emptyPages = 1
	}

	metadata := map[string]interface{}{
		"section_hierarchy": hierarchy,
		"total_words":       page.WordCount,
		"total_chars":       page.CharCount,
		"empty_pages":       emptyPages,
		"non_empty_pages":   1 - emptyPages,
	}
	for k, v := range frontmatter {
		metadata[k] = v
	}

	return &Document{
		DocumentID:         documentID,
		Filename:           filename,
		Format:             string(FormatMarkdown),
		Language:           language,
		TotalPages:         1,
		Pages:              []Page{page},
		ExtractionMetadata: metadata,
		DurationMS:         float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

// stripBullet removes list markers (-, *, + and simple numbered lists).
func stripBullet(line string) string {
	for _, prefix := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	for i := 1; i <= 9; i++ {
		prefix := string(rune('0'+i)) + ". "
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return line
}

// stripInline removes emphasis markers and rewrites [text](url) to text.
func stripInline(line string) string {
	out := strings.ReplaceAll(line, "**", "")
	out = strings.ReplaceAll(out, "*", "")

	for {
		start := strings.Index(out, "[")
		if start < 0 {
			break
		}
		mid := strings.Index(out[start:], "](")
		if mid < 0 {
			break
		}
		mid += start
		end := strings.Index(out[mid:], ")")
		if end < 0 {
			break
		}
		end += mid
		out = out[:start] + out[start+1:mid] + out[end+1:]
	}

	return out
}

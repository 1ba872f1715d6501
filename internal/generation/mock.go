package generation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient produces deterministic answers for tests and offline runs.
// The answer cites [Source 1] when the user message carries retrieved
// context, so the citation pipeline can be exercised end to end.
type MockClient struct {
	ModelName string
	// Response overrides the synthesized answer when set.
	Response string
	// Err is returned from Generate when set.
	Err error

	Calls [][]Message
}

// NewMockClient creates a mock with the default model name.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-chat"}
}

// Model implements Client.
func (m *MockClient) Model() string { return m.ModelName }

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, messages []Message, maxTokens int) (*Result, error) {
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := m.Response
	if content == "" {
		content = m.synthesize(messages)
	}

	promptTokens := 0
	for _, msg := range messages {
		promptTokens += len(strings.Fields(msg.Content))
	}
	completionTokens := len(strings.Fields(content))

	return &Result{
		Content: content,
		Model:   m.ModelName,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		LatencyMS: float64(time.Millisecond) / float64(time.Millisecond),
	}, nil
}

func (m *MockClient) synthesize(messages []Message) string {
	user := ""
	for _, msg := range messages {
		if msg.Role == "user" {
			user = msg.Content
		}
	}
	if strings.Contains(user, "[Source 1]") {
		return "Based on the retrieved material, the answer is summarized here [Source 1]."
	}
	return fmt.Sprintf("No relevant context was available for: %s",
		firstLine(afterMarker(user, "---USER QUERY---")))
}

func afterMarker(s, marker string) string {
	if i := strings.Index(s, marker); i >= 0 {
		return strings.TrimSpace(s[i+len(marker):])
	}
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

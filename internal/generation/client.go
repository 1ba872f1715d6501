// Package generation calls the chat-completion provider that turns an
// assembled prompt into an answer.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Message is a single chat message sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the provider-reported token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a completed generation.
type Result struct {
	Content   string
	Model     string
	Usage     Usage
	LatencyMS float64
}

// Client generates chat completions.
type Client interface {
	Generate(ctx context.Context, messages []Message, maxTokens int) (*Result, error)
	Model() string
}

// OpenAIConfig holds settings for the OpenAI-compatible chat completions API.
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	MaxRetries     int
	BaseBackoff    time.Duration
	RequestTimeout time.Duration
}

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	cfg    OpenAIConfig
	http   *http.Client
	logger *observability.Logger
}

// NewOpenAIClient creates a client with defaults applied.
func NewOpenAIClient(cfg OpenAIConfig, logger *observability.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-5-nano"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &OpenAIClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// Model implements Client.
func (c *OpenAIClient) Model() string { return c.cfg.Model }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Generate implements Client, retrying transient provider failures with
// exponential backoff.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, maxTokens int) (*Result, error) {
	if len(messages) == 0 {
		return nil, ragerr.NewBadRequest("messages cannot be empty")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.BaseBackoff
	policy.Multiplier = 2.0
	policy.RandomizationFactor = 0

	var result *Result
	attempt := 0
	operation := func() error {
		attempt++
		r, err := c.generateOnce(ctx, messages, maxTokens)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn().
				Int("attempt", attempt).
				Err(err).
				Msg("generation_retry")
			return err
		}
		result = r
		return nil
	}

	wrapped := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(c.cfg.MaxRetries))
	if err := backoff.Retry(operation, wrapped); err != nil {
		if e := ragerr.AsError(err); e != nil {
			return nil, e
		}
		return nil, ragerr.NewGeneration("generation provider failed: " + err.Error())
	}
	return result, nil
}

func (c *OpenAIClient) generateOnce(ctx context.Context, messages []Message, maxTokens int) (*Result, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return nil, ragerr.NewGeneration("marshal request: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.NewGeneration("build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ragerr.NewGeneration("provider call failed: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e := ragerr.NewGeneration(fmt.Sprintf("provider returned status %d", resp.StatusCode))
		e.StatusCode = providerStatusToLocal(resp.StatusCode)
		return nil, e.WithDetail("provider_status", resp.StatusCode).
			WithDetail("provider_body", string(payload))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ragerr.NewGeneration("decode response: " + err.Error())
	}
	if len(parsed.Choices) == 0 {
		return nil, ragerr.NewGeneration("provider returned no choices")
	}

	model := parsed.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &Result{
		Content:   parsed.Choices[0].Message.Content,
		Model:     model,
		Usage:     parsed.Usage,
		LatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

// isRetryable mirrors the embedding client classification: provider
// 429/500/502/503/504 and unclassified transport failures retry, other
// request errors do not.
func isRetryable(err error) bool {
	e := ragerr.AsError(err)
	if e == nil {
		return true
	}
	if status, ok := e.Details["provider_status"].(int); ok {
		switch status {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func providerStatusToLocal(status int) int {
	switch {
	case status == 429 || status >= 500:
		return 503
	case status >= 400:
		return 400
	default:
		return 503
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"video-pipeline/internal/config"
	"video-pipeline/internal/providers"
	"video-pipeline/internal/types"
)

// Client talks to any OpenAI-compatible chat completion endpoint (Groq by default).
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	attempts    int
	log         zerolog.Logger
}

func New(cfg config.LLMConfig, timeout time.Duration, attempts int, log zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key not set")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		attempts:    attempts,
		log:         log.With().Str("component", "llm").Logger(),
	}, nil
}

// complete sends one system+user exchange and returns the first choice.
func (c *Client) complete(ctx context.Context, op, system, user string, jsonMode bool, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var content string
	err := providers.Retry(ctx, c.attempts, func(attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, req)
		if err != nil {
			c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("chat completion failed")
			return classify(op, err)
		}
		if len(resp.Choices) == 0 {
			return &types.ProviderError{Provider: "llm", Op: op, Err: errors.New("no choices returned"), Retryable: true}
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	return content, err
}

// completeJSON is complete followed by decoding the reply into v.
func (c *Client) completeJSON(ctx context.Context, op, system, user string, maxTokens int, v any) error {
	content, err := c.complete(ctx, op, system, user, true, maxTokens)
	if err != nil {
		return err
	}
	cleaned := cleanJSON(content)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &types.ProviderError{
			Provider: "llm",
			Op:       op,
			Err:      fmt.Errorf("parse JSON reply: %w (content: %s)", err, truncate(cleaned, 200)),
		}
	}
	return nil
}

func classify(op string, err error) error {
	pe := &types.ProviderError{Provider: "llm", Op: op, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		pe.Retryable = providers.RetryableStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		pe.Retryable = providers.RetryableStatus(reqErr.HTTPStatusCode)
	default:
		pe.Retryable = providers.Retryable(err)
	}
	return pe
}

// cleanJSON strips markdown fences some models wrap JSON in.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package llm wraps the completion endpoint. The endpoint only has to
// speak the OpenAI chat-completions protocol; Moonshot's API does.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Options configures the completion client.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Client sends chat-completion requests to one endpoint with one model.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// New creates a completion client.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	return &Client{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		maxTokens: maxTokens,
		logger:    logger.With("component", "llm"),
	}
}

// Complete sends one system+user exchange and returns the raw response
// text. No retries: recovering from bad model output is the repair
// pipeline's job, and transport failures surface to the caller.
func (c *Client) Complete(ctx context.Context, systemPrompt, userText string, temperature float32) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

const chatSystemPrompt = `You are a helpful assistant. Answer questions, offer advice, and help the user with whatever they ask.

When the user asks about diagrams, flowcharts, sequence diagrams or other visualizations, you may suggest using the Mermaid tooling. Otherwise answer directly.

Keep answers concise, useful and friendly.`

// Chat produces a plain conversational reply, used when the classifier
// takes the chat path without supplying a direct response.
func (c *Client) Chat(ctx context.Context, userText string) (string, error) {
	return c.Complete(ctx, chatSystemPrompt, userText, 0.7)
}

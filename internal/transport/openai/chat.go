package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/faithful-rag/ragserve/internal/domain"
	"github.com/faithful-rag/ragserve/internal/metrics"
)

// ChatClient calls the chat-completions API for answer generation.
type ChatClient struct {
	client      *openai.Client
	temperature float32
}

// ChatConfig holds the chat-completions client settings.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Temperature float32
}

// NewChatClient creates an OpenAI-compatible chat-completions client.
func NewChatClient(cfg *ChatConfig) *ChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatClient{
		client:      openai.NewClientWithConfig(clientCfg),
		temperature: cfg.Temperature,
	}
}

// Complete sends a system+user prompt to the given model and returns the answer text.
func (c *ChatClient) Complete(ctx context.Context, model, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w: %w", model, err, domain.ErrModelUnavailable)
	}

	metrics.GenerationDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response (%s): %w", model, domain.ErrModelUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

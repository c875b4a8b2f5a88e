// Package openai provides an alternate model.Client implementation backed by
// the OpenAI Chat Completions API, selectable at wiring time in place of
// the default Anthropic-backed client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"qa-orchestrator/model"
)

type (
	// ChatClient captures the subset of the go-openai client used by the
	// adapter, so tests can substitute a stub.
	ChatClient interface {
		CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	}

	// Client implements model.Client via the OpenAI Chat Completions API.
	Client struct {
		chat  ChatClient
		model string
	}
)

// New builds an OpenAI-backed model client.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	defaultModel = strings.TrimSpace(defaultModel)
	if defaultModel == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: chat, model: defaultModel}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	return New(openai.NewClient(apiKey), defaultModel)
}

// Complete renders a single-turn chat completion. Rate-limit (HTTP 429)
// errors are retried with backoff via model.RetryOnRateLimit before
// falling back to model.ErrRateLimited.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	if req.UserPrompt == "" {
		return nil, errors.New("openai: user prompt is required")
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})
	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	resp, err := model.RetryOnRateLimit(ctx, isRateLimited, func() (*model.Response, error) {
		cc, err := c.chat.CreateChatCompletion(ctx, request)
		if err != nil {
			return nil, err
		}
		var text string
		if len(cc.Choices) > 0 {
			text = cc.Choices[0].Message.Content
		}
		return &model.Response{
			Text: text,
			Usage: model.TokenUsage{
				InputTokens:  cc.Usage.PromptTokens,
				OutputTokens: cc.Usage.CompletionTokens,
				TotalTokens:  cc.Usage.TotalTokens,
			},
		}, nil
	})
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return resp, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}

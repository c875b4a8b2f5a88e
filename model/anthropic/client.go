// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API, used as the default GEMINI_API_KEY-style
// external LLM backing the perception and decision agents. It translates
// single-turn requests into anthropic.Message calls using
// github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"qa-orchestrator/model"
)

type (
	// MessagesClient captures the subset of the Anthropic SDK used by the
	// adapter, so tests can substitute a stub.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Client implements model.Client on top of Anthropic Claude Messages.
	Client struct {
		msg          MessagesClient
		defaultModel string
		maxTokens    int
	}
)

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, defaultModel string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client
// and the given API key (cmd/demo passes the GEMINI_API_KEY value read by
// config.LoadEnv). An empty key is rejected.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultModel, 0)
}

// Complete issues a single-turn Messages.New request and returns the
// concatenated text content. Rate-limit errors (an error text containing
// 429, rate_limit or RESOURCE_EXHAUSTED) are retried with backoff via
// model.RetryOnRateLimit and, once attempts run out, returned wrapped in
// model.ErrRateLimited. Other errors, 5xx server errors included, are
// returned without a retry.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	if req.UserPrompt == "" {
		return nil, errors.New("anthropic: user prompt is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.defaultModel),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	resp, err := model.RetryOnRateLimit(ctx, isRateLimited, func() (*model.Response, error) {
		msg, err := c.msg.New(ctx, params)
		if err != nil {
			return nil, err
		}
		return translateResponse(msg), nil
	})
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return resp, nil
}

func translateResponse(msg *sdk.Message) *model.Response {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &model.Response{
		Text: text,
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

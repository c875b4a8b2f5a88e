// Package model defines the Client contract used by the perception and
// decision agents to call an external LLM. The orchestrator only needs
// single-turn system+user completions — neither agent relies on native
// provider tool-calling, since tool invocation is mediated entirely by the
// executor's code-step pipeline.
package model

import (
	"context"
	"errors"
)

// ErrRateLimited is returned (wrapped) by Client implementations when the
// provider reports a rate-limit or resource-exhaustion condition. The
// coordinator inspects this with errors.Is to choose the high-traffic user
// message.
var ErrRateLimited = errors.New("model: rate limited")

type (
	// Request is a single completion request: a system prompt establishing
	// the agent's role/contract, and a user prompt carrying the
	// query-specific content.
	Request struct {
		SystemPrompt string
		UserPrompt   string
		Temperature  float64
		MaxTokens    int
	}

	// TokenUsage reports provider-side token accounting, when available.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Response is the model's completion text plus usage accounting.
	Response struct {
		Text  string
		Usage TokenUsage
	}

	// Client abstracts a single external LLM backend.
	Client interface {
		Complete(ctx context.Context, req Request) (*Response, error)
	}
)

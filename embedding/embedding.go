// Package embedding maps text to dense vectors via an external embedding
// service (C1). It is a thin external collaborator per the orchestrator
// contract; this package defines the interface and a fake for tests, with
// the default HTTP adapter living in embedding/ollama.
package embedding

import (
	"context"
	"errors"
)

// Error wraps a failure to reach or parse a response from the embedding
// service. Retriever tiers treat an *Error as an empty hit rather than
// aborting the cascade.
type Error struct {
	Cause error
}

func (e *Error) Error() string { return "embedding: " + e.Cause.Error() }
func (e *Error) Unwrap() error { return e.Cause }

// Client maps text to a dense vector of the service's fixed dimension.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Dimension is the canonical embedding dimension used by both vector
// indices. Changing the embedding model requires rebuilding both indices.
const Dimension = 768

var errEmptyText = errors.New("embedding: text must not be empty")

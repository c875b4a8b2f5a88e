// Package ollama provides the default embedding.Client implementation,
// calling a local Ollama server's /api/embeddings endpoint with the
// nomic-embed-text model — the same service contract used by
// memory_agent.py's get_embedding and session_memory.py's _get_embedding in
// the original implementation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"qa-orchestrator/embedding"
)

const defaultModel = "nomic-embed-text"

// Client calls an Ollama server's embeddings endpoint over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// New constructs a Client targeting baseURL (typically read from the
// OLLAMA_HOST environment variable, defaulting to http://localhost:11434).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      defaultModel,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed posts text to the configured Ollama server and returns its
// embedding vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, &embedding.Error{Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &embedding.Error{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &embedding.Error{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &embedding.Error{Cause: fmt.Errorf("ollama embeddings: status %d", resp.StatusCode)}
	}
	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &embedding.Error{Cause: err}
	}
	if len(out.Embedding) != embedding.Dimension {
		return nil, &embedding.Error{Cause: fmt.Errorf("ollama embeddings: expected dimension %d, got %d", embedding.Dimension, len(out.Embedding))}
	}
	return out.Embedding, nil
}

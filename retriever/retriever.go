// Package retriever implements the tiered retrieval cascade (C4): session
// memory (Tier 1), cross-session vector cache (Tier 2), document vector
// index (Tier 3), each tried in order and short-circuiting on the first
// valid hit — except Tier 3, which never short-circuits on an empty
// result since it is the terminal tier. Grounded in
// original_source/retriever_agent.py's RetrieverAgent.run.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/embedding"
	"qa-orchestrator/memory"
	"qa-orchestrator/vectorindex"
)

const (
	sessionSimilarityThreshold = 0.85
	tier2TopK                  = 3
	tier3TopK                  = 5
)

// Retriever runs the cascade against one session's memory store and the
// shared Tier-2/Tier-3 vector indices.
type Retriever struct {
	session  *memory.SessionStore
	tier2    *vectorindex.Index[memory.Entry]
	tier3    *vectorindex.Index[memory.DocumentChunk]
	embedder embedding.Client
}

// New builds a Retriever over the given stores.
func New(session *memory.SessionStore, tier2 *vectorindex.Index[memory.Entry], tier3 *vectorindex.Index[memory.DocumentChunk], embedder embedding.Client) *Retriever {
	return &Retriever{session: session, tier2: tier2, tier3: tier3, embedder: embedder}
}

// Run gathers context for query with priority Session -> Tier 2 -> Tier 3,
// writing the result onto bb's context data under the "initial_retrieval"
// key, with the entry's Source naming the tier that answered ("session",
// "memory", "documents", or "none").
func (r *Retriever) Run(ctx context.Context, bb *blackboard.Blackboard, query string) error {
	if hit, err := r.searchSession(ctx, query); err != nil {
		return err
	} else if hit != nil {
		bb.SetContext("initial_retrieval", blackboard.ContextEntry{
			Text:   fmt.Sprintf("Session Memory (Turn %d):\n%s", hit.TurnID, hit.Answer),
			Source: "session",
		})
		return nil
	}

	if hit, err := r.searchTier2(ctx, query); err != nil {
		return err
	} else if hit != nil {
		bb.SetContext("initial_retrieval", blackboard.ContextEntry{
			Text:   fmt.Sprintf("Memory (Cached):\n%s", hit.Answer),
			Source: "memory",
		})
		return nil
	}

	chunks, err := r.searchTier3(ctx, query)
	if err != nil {
		return err
	}
	if len(chunks) > 0 {
		text := "Local Documents:\n"
		for i, c := range chunks {
			if i > 0 {
				text += "\n\n"
			}
			text += fmt.Sprintf("%s\n[Source: %s, ID: %s]", c.Text, c.DocName, c.ChunkID)
		}
		bb.SetContext("initial_retrieval", blackboard.ContextEntry{Text: text, Source: "documents"})
		return nil
	}

	bb.SetContext("initial_retrieval", blackboard.ContextEntry{Text: "", Source: "none"})
	return nil
}

// isEmbeddingError reports whether err is an embedding.Error: a failure to
// reach or parse a response from the embedding service. Per
// embedding.Error's contract, the retriever cascade treats this as an
// empty hit for the current tier rather than aborting the whole Run.
func isEmbeddingError(err error) bool {
	var embErr *embedding.Error
	return errors.As(err, &embErr)
}

func (r *Retriever) searchSession(ctx context.Context, query string) (*memory.SimilarTurn, error) {
	if r.session == nil {
		return nil, nil
	}
	hit, err := r.session.SearchSimilar(ctx, query, sessionSimilarityThreshold)
	if err != nil {
		if isEmbeddingError(err) {
			return nil, nil
		}
		return nil, err
	}
	return hit, nil
}

func (r *Retriever) searchTier2(ctx context.Context, query string) (*memory.Entry, error) {
	if r.tier2 == nil || r.tier2.Len() == 0 {
		return nil, nil
	}
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if isEmbeddingError(err) {
			return nil, nil
		}
		return nil, err
	}
	matches, err := r.tier2.TopK(queryVec, tier2TopK)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, m := range matches {
		if memory.IsMemoryValid(m.Metadata, query, now) {
			entry := m.Metadata
			return &entry, nil
		}
	}
	return nil, nil
}

func (r *Retriever) searchTier3(ctx context.Context, query string) ([]memory.DocumentChunk, error) {
	if r.tier3 == nil || r.tier3.Len() == 0 {
		return nil, nil
	}
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if isEmbeddingError(err) {
			return nil, nil
		}
		return nil, err
	}
	matches, err := r.tier3.TopK(queryVec, tier3TopK)
	if err != nil {
		return nil, err
	}
	chunks := make([]memory.DocumentChunk, len(matches))
	for i, m := range matches {
		chunks[i] = m.Metadata
	}
	return chunks, nil
}

// IndexAnswer promotes a successful answer into Tier 2 when it clears
// memory.ShouldIndexToMemory's gate. It is a no-op otherwise.
func (r *Retriever) IndexAnswer(ctx context.Context, sessionID, query, answer, source string, confidence float64, goalAchieved bool) error {
	if !memory.ShouldIndexToMemory(confidence, source, answer, goalAchieved) {
		return nil
	}
	if r.tier2 == nil {
		return nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return err
	}
	entry := memory.Entry{
		Query:      query,
		Answer:     answer,
		Confidence: confidence,
		Source:     source,
		Timestamp:  time.Now(),
		TTLHours:   memory.CalculateTTLHours(source),
		SessionID:  sessionID,
	}
	return r.tier2.Add(vec, entry)
}

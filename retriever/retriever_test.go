package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/embedding"
	"qa-orchestrator/memory"
	"qa-orchestrator/vectorindex"
)

func TestRunPrefersSessionHitOverTier2AndTier3(t *testing.T) {
	embedder := embedding.Fake{}
	session := memory.NewSessionStore("s1", embedder, t.TempDir())
	session.AddTurn("what is the capital of France?", "Paris", 0.95, "web", true, nil)

	tier2, err := vectorindex.Open[memory.Entry](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	tier3, err := vectorindex.Open[memory.DocumentChunk](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)

	r := New(session, tier2, tier3, embedder)
	bb := blackboard.New("s1", "what is the capital of France?", blackboard.HITLConfig{})

	require.NoError(t, r.Run(context.Background(), bb, "what is the capital of France?"))
	entry := bb.ContextData()["initial_retrieval"]
	require.Equal(t, "session", entry.Source)
	require.Contains(t, entry.Text, "Paris")
}

func TestRunFallsThroughToTier2WhenSessionEmpty(t *testing.T) {
	embedder := embedding.Fake{}
	session := memory.NewSessionStore("s1", embedder, t.TempDir())

	tier2, err := vectorindex.Open[memory.Entry](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	tier3, err := vectorindex.Open[memory.DocumentChunk](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)

	vec, err := embedder.Embed(context.Background(), "who won the 2020 election?")
	require.NoError(t, err)
	require.NoError(t, tier2.Add(vec, memory.Entry{
		Query: "who won the 2020 election?", Answer: "Biden", Confidence: 0.95,
		Source: "document", Timestamp: time.Now(), TTLHours: 168,
	}))

	r := New(session, tier2, tier3, embedder)
	bb := blackboard.New("s1", "who won the 2020 election?", blackboard.HITLConfig{})

	require.NoError(t, r.Run(context.Background(), bb, "who won the 2020 election?"))
	entry := bb.ContextData()["initial_retrieval"]
	require.Equal(t, "memory", entry.Source)
	require.Contains(t, entry.Text, "Biden")
}

func TestRunFallsThroughToTier3WhenTier2Stale(t *testing.T) {
	embedder := embedding.Fake{}
	session := memory.NewSessionStore("s1", embedder, t.TempDir())

	tier2, err := vectorindex.Open[memory.Entry](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	tier3, err := vectorindex.Open[memory.DocumentChunk](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)

	vec, err := embedder.Embed(context.Background(), "explain quantum tunneling")
	require.NoError(t, err)
	require.NoError(t, tier2.Add(vec, memory.Entry{
		Query: "explain quantum tunneling", Answer: "stale", Confidence: 0.95,
		Source: "web", Timestamp: time.Now().Add(-48 * time.Hour), TTLHours: 6,
	}))
	require.NoError(t, tier3.Add(vec, memory.DocumentChunk{
		ChunkID: "c1", DocName: "physics.pdf", ChunkIndex: 0, Text: "Quantum tunneling is...",
	}))

	r := New(session, tier2, tier3, embedder)
	bb := blackboard.New("s1", "explain quantum tunneling", blackboard.HITLConfig{})

	require.NoError(t, r.Run(context.Background(), bb, "explain quantum tunneling"))
	entry := bb.ContextData()["initial_retrieval"]
	require.Equal(t, "documents", entry.Source)
	require.Contains(t, entry.Text, "Quantum tunneling")
}

func TestRunNoneWhenAllTiersEmpty(t *testing.T) {
	embedder := embedding.Fake{}
	session := memory.NewSessionStore("s1", embedder, t.TempDir())
	tier2, err := vectorindex.Open[memory.Entry](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	tier3, err := vectorindex.Open[memory.DocumentChunk](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)

	r := New(session, tier2, tier3, embedder)
	bb := blackboard.New("s1", "anything", blackboard.HITLConfig{})

	require.NoError(t, r.Run(context.Background(), bb, "anything"))
	entry := bb.ContextData()["initial_retrieval"]
	require.Equal(t, "none", entry.Source)
}

func TestIndexAnswerSkipsLowConfidence(t *testing.T) {
	embedder := embedding.Fake{}
	tier2, err := vectorindex.Open[memory.Entry](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	r := New(nil, tier2, nil, embedder)

	require.NoError(t, r.IndexAnswer(context.Background(), "s1", "q", "a reasonably long answer here", "tool", 0.5, true))
	require.Equal(t, 0, tier2.Len())
}

func TestIndexAnswerPromotesSuccessfulAnswer(t *testing.T) {
	embedder := embedding.Fake{}
	tier2, err := vectorindex.Open[memory.Entry](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	r := New(nil, tier2, nil, embedder)

	require.NoError(t, r.IndexAnswer(context.Background(), "s1", "q", "a reasonably long answer here", "tool", 0.95, true))
	require.Equal(t, 1, tier2.Len())
}

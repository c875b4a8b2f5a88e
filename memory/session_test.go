package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"qa-orchestrator/embedding"
)

func TestAddTurnAssignsSequentialIDs(t *testing.T) {
	s := NewSessionStore("sess-1", embedding.Fake{}, t.TempDir())
	id0 := s.AddTurn("q0", "a0", 0.9, "session", true, nil)
	id1 := s.AddTurn("q1", "a1", 0.9, "session", true, nil)
	require.Equal(t, 0, id0)
	require.Equal(t, 1, id1)
	require.Equal(t, 2, s.Len())
}

func TestSearchSimilarSkipsUnvalidatedAndLowConfidence(t *testing.T) {
	s := NewSessionStore("sess-1", embedding.Fake{}, t.TempDir())
	s.AddTurn("my favourite colour is purple", "Got it, purple.", 0.95, "session", false, nil)
	s.AddTurn("what is 2+2", "4", 0.5, "session", true, nil)

	match, err := s.SearchSimilar(context.Background(), "my favourite colour is purple", 0.85)
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestSearchSimilarHitsOnExactText(t *testing.T) {
	s := NewSessionStore("sess-1", embedding.Fake{}, t.TempDir())
	s.AddTurn("my favourite colour is purple", "Purple.", 0.95, "session", true, nil)

	match, err := s.SearchSimilar(context.Background(), "my favourite colour is purple", 0.85)
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, "Purple.", match.Answer)
	require.GreaterOrEqual(t, match.Similarity, 0.85)
}

func TestContextChainWalksBackward(t *testing.T) {
	s := NewSessionStore("sess-1", embedding.Fake{}, t.TempDir())
	t0 := s.AddTurn("q0", "a0", 0.9, "session", true, nil)
	t1 := s.AddTurn("q1", "a1", 0.9, "session", true, &t0)
	t2 := s.AddTurn("q2", "a2", 0.9, "session", true, &t1)

	chain := s.ContextChain(t2)
	require.Len(t, chain, 3)
	require.Equal(t, 0, chain[0].TurnID)
	require.Equal(t, 2, chain[2].TurnID)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewSessionStore("sess-1", embedding.Fake{}, dir)
	s.AddTurn("q0", "a0", 0.9, "session", true, nil)
	s.ValidateTurn(0)
	require.NoError(t, s.Save())

	loaded, err := LoadSessionStore("sess-1", embedding.Fake{}, dir)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	turn := loaded.GetTurn(0)
	require.NotNil(t, turn)
	require.True(t, turn.Validated)
	require.Equal(t, "q0", turn.Query)
}

func TestLoadMissingSessionReturnsEmpty(t *testing.T) {
	s, err := LoadSessionStore("does-not-exist", embedding.Fake{}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 0, s.Len())
}

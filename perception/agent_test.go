package perception

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/model"
)

type fakeClient struct {
	text string
	err  error
}

func (f *fakeClient) Complete(context.Context, model.Request) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{Text: f.text}, nil
}

func TestRunParsesSnapshot(t *testing.T) {
	client := &fakeClient{text: `{
		"entities": ["paris"],
		"result_requirement": "capital of France",
		"original_goal_achieved": true,
		"reasoning": "answer found",
		"local_goal_achieved": true,
		"local_reasoning": "tool succeeded",
		"confidence": 0.95,
		"solution_summary": "Paris",
		"require_ground_truth": false
	}`}
	a := New(client)
	bb := blackboard.New("s1", "what is the capital of France?", blackboard.HITLConfig{})

	snap := a.Run(context.Background(), bb, "Paris is the capital of France", blackboard.PerceptionStepResult)

	require.Equal(t, blackboard.PerceptionStepResult, snap.Kind)
	require.True(t, snap.OriginalGoalAchieved)
	require.Equal(t, 0.95, snap.Confidence)
	require.Equal(t, "Paris", snap.SolutionSummary)
}

func TestRunFallsBackOnModelError(t *testing.T) {
	client := &fakeClient{err: model.ErrRateLimited}
	a := New(client)
	bb := blackboard.New("s1", "query", blackboard.HITLConfig{})

	snap := a.Run(context.Background(), bb, "query", blackboard.PerceptionUserQuery)

	require.Equal(t, blackboard.PerceptionUserQuery, snap.Kind)
	require.False(t, snap.OriginalGoalAchieved)
	require.Equal(t, 0.0, snap.Confidence)
	require.Contains(t, snap.Reasoning, "perception failed")
}

func TestRunFallsBackOnInvalidJSON(t *testing.T) {
	client := &fakeClient{text: "not json"}
	a := New(client)
	bb := blackboard.New("s1", "query", blackboard.HITLConfig{})

	snap := a.Run(context.Background(), bb, "query", blackboard.PerceptionUserQuery)

	require.Equal(t, 0.0, snap.Confidence)
	require.Contains(t, snap.Reasoning, "invalid JSON")
}

func TestRunKindIsEnforcedNotTrusted(t *testing.T) {
	client := &fakeClient{text: `{"kind": "step_result", "entities": [], "result_requirement": "x", "original_goal_achieved": false, "local_goal_achieved": false, "confidence": 0.5}`}
	a := New(client)
	bb := blackboard.New("s1", "query", blackboard.HITLConfig{})

	snap := a.Run(context.Background(), bb, "query", blackboard.PerceptionUserQuery)
	require.Equal(t, blackboard.PerceptionUserQuery, snap.Kind)
}

package decision

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

func TestRunInitialCreatesPlanVersion(t *testing.T) {
	client := &fakeClient{text: `{"description": "search", "type": "CODE", "code": "result = web_search(query=\"x\")"}`}
	a := New(client)
	bb := blackboard.New("s1", "what is x", blackboard.HITLConfig{})

	step, err := a.Run(context.Background(), bb, ModeInitial)
	require.NoError(t, err)
	require.Equal(t, blackboard.StepCode, step.Type)
	require.Len(t, bb.CurrentPlan(), 1)
}

func TestRunReplanAppendsToCurrentPlan(t *testing.T) {
	client := &fakeClient{text: `{"description": "conclude", "type": "CONCLUDE", "conclusion": "the answer is 42"}`}
	a := New(client)
	bb := blackboard.New("s1", "q", blackboard.HITLConfig{})
	bb.AddPlanVersion([]blackboard.PlanStep{{Type: blackboard.StepCode}})

	step, err := a.Run(context.Background(), bb, ModeReplan)
	require.NoError(t, err)
	require.Equal(t, blackboard.StepConclude, step.Type)
	require.Len(t, bb.CurrentPlan(), 2)
	require.Equal(t, 1, step.StepIndex)
}

func TestRunForcesAskUserOnToolFailureMarker(t *testing.T) {
	client := &fakeClient{text: `{"description": "retry search", "type": "CODE", "code": "result = web_search(query=\"x\")"}`}
	a := New(client)
	bb := blackboard.New("s1", "q", blackboard.HITLConfig{})
	bb.AddPlanVersion([]blackboard.PlanStep{{Type: blackboard.StepCode}})
	require.NoError(t, bb.UpdateStep(0, blackboard.StatusFailed, "TOOL_FAILURE: web_search timed out", 0))

	step, err := a.Run(context.Background(), bb, ModeReplan)
	require.NoError(t, err)
	require.Equal(t, blackboard.StepAskUser, step.Type)
	require.Empty(t, step.Code)
}

func TestRunForcesAskUserOnErrorSubstring(t *testing.T) {
	client := &fakeClient{text: `{"description": "ignore", "type": "CODE", "code": "x = 1"}`}
	a := New(client)
	bb := blackboard.New("s1", "q", blackboard.HITLConfig{})
	bb.AddPlanVersion([]blackboard.PlanStep{{Type: blackboard.StepCode}})
	require.NoError(t, bb.UpdateStep(0, blackboard.StatusFailed, "Error: division by zero", 0))

	step, err := a.Run(context.Background(), bb, ModeReplan)
	require.NoError(t, err)
	require.Equal(t, blackboard.StepAskUser, step.Type)
}

func TestRunNopOnModelFailure(t *testing.T) {
	client := &fakeClient{err: model.ErrRateLimited}
	a := New(client)
	bb := blackboard.New("s1", "q", blackboard.HITLConfig{})

	step, err := a.Run(context.Background(), bb, ModeInitial)
	require.NoError(t, err)
	require.Equal(t, blackboard.StepNOP, step.Type)
}

func TestRunNopOnInvalidJSON(t *testing.T) {
	client := &fakeClient{text: "not json"}
	a := New(client)
	bb := blackboard.New("s1", "q", blackboard.HITLConfig{})

	step, err := a.Run(context.Background(), bb, ModeInitial)
	require.NoError(t, err)
	require.Equal(t, blackboard.StepNOP, step.Type)
}

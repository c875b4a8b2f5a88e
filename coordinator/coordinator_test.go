package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/decision"
	"qa-orchestrator/embedding"
	"qa-orchestrator/ioh"
	"qa-orchestrator/memory"
	"qa-orchestrator/model"
	"qa-orchestrator/perception"
	"qa-orchestrator/retriever"
	"qa-orchestrator/toolserver"
	"qa-orchestrator/vectorindex"
)

// scriptedClient returns successive canned responses, one per Complete
// call, so a test can drive a multi-turn perception/decision exchange.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Complete(context.Context, model.Request) (*model.Response, error) {
	if c.calls >= len(c.responses) {
		return &model.Response{Text: c.responses[len(c.responses)-1]}, nil
	}
	r := c.responses[c.calls]
	c.calls++
	return &model.Response{Text: r}, nil
}

type noopCaller struct{}

func (noopCaller) ListTools() []toolserver.ToolSpec                             { return nil }
func (noopCaller) HasTool(string) bool                                         { return false }
func (noopCaller) Call(context.Context, string, []any) (*toolserver.ToolResult, error) {
	return nil, nil
}

// silentHandler records emitted events without printing anything, and
// never blocks on input (tests don't enable HITL gates).
type silentHandler struct {
	answers []string
}

func (h *silentHandler) Output(_ context.Context, kind ioh.Kind, data any) error {
	if kind == ioh.KindAnswer {
		if m, ok := data.(map[string]string); ok {
			h.answers = append(h.answers, m["answer"])
		}
	}
	return nil
}

func (h *silentHandler) Input(context.Context, string, any) (string, error) {
	return "", nil
}

func newHarness(t *testing.T, perceptionClient, decisionClient model.Client) (*Coordinator, *silentHandler) {
	t.Helper()
	embedder := embedding.Fake{}
	session := memory.NewSessionStore("s1", embedder, t.TempDir())
	tier2, err := vectorindex.Open[memory.Entry](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	tier3, err := vectorindex.Open[memory.DocumentChunk](t.TempDir(), embedding.Dimension)
	require.NoError(t, err)
	r := retriever.New(session, tier2, tier3, embedder)

	h := &silentHandler{}
	c := New(perception.New(perceptionClient), decision.New(decisionClient), noopCaller{}, r, session, h, t.TempDir())
	return c, h
}

func TestRunConcludesImmediatelyWhenInitialPerceptionAchievesGoal(t *testing.T) {
	perceptionClient := &scriptedClient{responses: []string{`{
		"original_goal_achieved": true,
		"local_goal_achieved": true,
		"confidence": 0.95,
		"solution_summary": "Paris",
		"result_requirement": "capital of France"
	}`}}
	decisionClient := &scriptedClient{}

	c, h := newHarness(t, perceptionClient, decisionClient)
	answer := c.Run(context.Background(), "s1", "what is the capital of France?", blackboard.HITLConfig{})

	require.Equal(t, "Paris", answer)
	require.Equal(t, []string{"Paris"}, h.answers)
}

func TestRunReachesConcludeStepAfterExecution(t *testing.T) {
	perceptionClient := &scriptedClient{responses: []string{`{
		"original_goal_achieved": false,
		"local_goal_achieved": false,
		"confidence": 0.2,
		"result_requirement": "compute 2+2"
	}`}}
	decisionClient := &scriptedClient{responses: []string{
		`{"description": "conclude", "type": "CONCLUDE", "conclusion": "4"}`,
	}}

	c, h := newHarness(t, perceptionClient, decisionClient)
	answer := c.Run(context.Background(), "s1", "what is 2+2?", blackboard.HITLConfig{})

	require.Equal(t, "4", answer)
	require.Equal(t, []string{"4"}, h.answers)
}

func TestRunMaxStepsExhaustion(t *testing.T) {
	perceptionClient := &scriptedClient{responses: []string{`{
		"original_goal_achieved": false,
		"confidence": 0.1
	}`}}
	decisionClient := &scriptedClient{responses: []string{
		`{"description": "nop", "type": "NOP"}`,
	}}

	c, _ := newHarness(t, perceptionClient, decisionClient)
	answer := c.Run(context.Background(), "s1", "loop forever", blackboard.HITLConfig{})

	require.Equal(t, "Max steps reached.", answer)
}

package blackboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddPlanVersionAssignsStepIndex(t *testing.T) {
	b := New("sess-1", "what is purple?", HITLConfig{})
	idx := b.AddPlanVersion([]PlanStep{
		{Description: "first", Type: StepCode, Code: "x = 1"},
		{Description: "second", Type: StepConclude, Conclusion: "done"},
	})
	require.Equal(t, 0, idx)
	plan := b.CurrentPlan()
	require.Len(t, plan, 2)
	require.Equal(t, 0, plan[0].StepIndex)
	require.Equal(t, 1, plan[1].StepIndex)
	require.Equal(t, StatusPending, plan[0].Status)
}

func TestAppendStepRequiresExistingVersion(t *testing.T) {
	b := New("sess-1", "q", HITLConfig{})
	_, err := b.AppendStep(PlanStep{Type: StepCode})
	require.Error(t, err)

	b.AddPlanVersion([]PlanStep{{Type: StepCode}})
	step, err := b.AppendStep(PlanStep{Type: StepConclude, Conclusion: "x"})
	require.NoError(t, err)
	require.Equal(t, 1, step.StepIndex)
}

func TestUpdateStepTransitionsOnce(t *testing.T) {
	b := New("sess-1", "q", HITLConfig{})
	b.AddPlanVersion([]PlanStep{{Type: StepCode}})

	require.NoError(t, b.UpdateStep(0, StatusCompleted, "42", time.Millisecond))
	plan := b.CurrentPlan()
	require.Equal(t, StatusCompleted, plan[0].Status)
	require.Equal(t, 1, plan[0].Attempts)

	err := b.UpdateStep(0, StatusFailed, "oops", 0)
	require.Error(t, err)
	var invErr *InvariantError
	require.ErrorAs(t, err, &invErr)
}

func TestUpdateStepOutOfRange(t *testing.T) {
	b := New("sess-1", "q", HITLConfig{})
	b.AddPlanVersion([]PlanStep{{Type: StepCode}})
	require.Error(t, b.UpdateStep(5, StatusCompleted, "", 0))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	b := New("sess-1", "q", HITLConfig{})
	b.AddPlanVersion([]PlanStep{{Type: StepCode}})
	b.SetContext("session", ContextEntry{Text: "purple", Source: "session"})

	snap := b.Snapshot()
	snap.ContextData["session"] = ContextEntry{Text: "mutated"}

	require.Equal(t, "purple", b.ContextData()["session"].Text)
}

func TestUserFeedbackAndFinalAnswer(t *testing.T) {
	b := New("sess-1", "q", HITLConfig{})
	b.AppendFeedback("try again")
	require.Equal(t, []string{"try again"}, b.UserFeedback())

	b.SetFinalAnswer("Purple")
	require.Equal(t, "Purple", b.FinalAnswer())
}

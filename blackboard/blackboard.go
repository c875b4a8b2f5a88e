package blackboard

import (
	"encoding/json"
	"fmt"
	"time"
)

// InvariantError reports a violated Blackboard invariant — a programmer
// error that should abort the run rather than be retried.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "blackboard: " + e.Msg }

func invariant(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// Blackboard is the sole mutable owner of a session's State. It is owned by
// a single coordinator goroutine for the lifetime of one query and is not
// safe for concurrent access.
type Blackboard struct {
	state State
}

// New creates a Blackboard for a fresh session.
func New(sessionID, originalQuery string, hitl HITLConfig) *Blackboard {
	return &Blackboard{
		state: State{
			SessionID:     sessionID,
			OriginalQuery: originalQuery,
			ContextData:   make(map[string]ContextEntry),
			HITLConfig:    hitl,
		},
	}
}

// AddPlanVersion appends a new plan version, assigning StepIndex values
// starting at 0 within the new version and StatusPending to each step.
func (b *Blackboard) AddPlanVersion(steps []PlanStep) int {
	version := make([]PlanStep, len(steps))
	seen := make(map[int]bool, len(steps))
	for i, s := range steps {
		s.StepIndex = i
		if s.Status == "" {
			s.Status = StatusPending
		}
		version[i] = s
		seen[i] = true
	}
	b.state.PlanVersions = append(b.state.PlanVersions, version)
	b.state.CurrentPlanIndex = len(b.state.PlanVersions) - 1
	return b.state.CurrentPlanIndex
}

// AppendStep appends one step to the current plan version (used by replan),
// assigning the next StepIndex.
func (b *Blackboard) AppendStep(step PlanStep) (*PlanStep, error) {
	if len(b.state.PlanVersions) == 0 {
		return nil, invariant("append step with no plan version")
	}
	idx := b.state.CurrentPlanIndex
	version := b.state.PlanVersions[idx]
	step.StepIndex = len(version)
	if step.Status == "" {
		step.Status = StatusPending
	}
	version = append(version, step)
	b.state.PlanVersions[idx] = version
	return &b.state.PlanVersions[idx][len(version)-1], nil
}

// CurrentPlan returns the steps of the current plan version. The returned
// slice shares storage with internal state and must not be mutated directly
// by callers — use UpdateStep.
func (b *Blackboard) CurrentPlan() []PlanStep {
	if len(b.state.PlanVersions) == 0 {
		return nil
	}
	return b.state.PlanVersions[b.state.CurrentPlanIndex]
}

// UpdateStep transitions the step at stepIndex in the current plan version.
// A step may transition out of StatusPending at most once; moving an
// already-terminal step to another terminal status is an invariant
// violation (resetting it to StatusPending is allowed).
func (b *Blackboard) UpdateStep(stepIndex int, status StepStatus, result string, execTime time.Duration) error {
	if len(b.state.PlanVersions) == 0 {
		return invariant("update step with no plan version")
	}
	version := b.state.PlanVersions[b.state.CurrentPlanIndex]
	if stepIndex < 0 || stepIndex >= len(version) {
		return invariant("step index %d out of range [0,%d)", stepIndex, len(version))
	}
	step := &version[stepIndex]
	if step.Status != StatusPending && status != StatusPending {
		return invariant("step %d already transitioned out of pending (status=%s)", stepIndex, step.Status)
	}
	step.Attempts++
	step.Status = status
	step.ExecutionResult = result
	step.ExecutionTime = execTime
	return nil
}

// LogFailure appends a failure record to the session trace log. Failures
// logged here are never promoted to Tier 2 or Tier 1.
func (b *Blackboard) LogFailure(query, errText string) {
	b.state.SessionMemory = append(b.state.SessionMemory, FailureRecord{
		Query:     query,
		Error:     errText,
		Timestamp: time.Now(),
	})
}

// UpdatePerception replaces the latest perception snapshot.
func (b *Blackboard) UpdatePerception(snap PerceptionSnapshot) {
	snap.Timestamp = time.Now()
	b.state.LatestPerception = &snap
}

// LatestPerception returns the most recent perception snapshot, or nil if
// none has been recorded yet.
func (b *Blackboard) LatestPerception() *PerceptionSnapshot {
	return b.state.LatestPerception
}

// SetContext records a retrieved context entry under key (typically the
// tier name: "session", "memory", "documents").
func (b *Blackboard) SetContext(key string, entry ContextEntry) {
	b.state.ContextData[key] = entry
}

// ContextData returns the current retrieved-context map.
func (b *Blackboard) ContextData() map[string]ContextEntry {
	return b.state.ContextData
}

// AppendFeedback records a user response to a HITL gate.
func (b *Blackboard) AppendFeedback(text string) {
	b.state.UserFeedback = append(b.state.UserFeedback, text)
}

// UserFeedback returns the ordered feedback log.
func (b *Blackboard) UserFeedback() []string {
	return b.state.UserFeedback
}

// SetFinalAnswer records the terminal answer for the session.
func (b *Blackboard) SetFinalAnswer(answer string) {
	b.state.FinalAnswer = answer
}

// FinalAnswer returns the recorded terminal answer, if any.
func (b *Blackboard) FinalAnswer() string {
	return b.state.FinalAnswer
}

// HITLConfig returns the session's HITL gate configuration.
func (b *Blackboard) HITLConfig() HITLConfig {
	return b.state.HITLConfig
}

// SessionID returns the session identifier.
func (b *Blackboard) SessionID() string {
	return b.state.SessionID
}

// OriginalQuery returns the query that started the session.
func (b *Blackboard) OriginalQuery() string {
	return b.state.OriginalQuery
}

// Snapshot returns a deep copy of the full session state, suitable for
// logging or debug-dump persistence without risk of aliasing.
func (b *Blackboard) Snapshot() State {
	data, err := json.Marshal(b.state)
	if err != nil {
		// State only ever holds JSON-safe fields; a marshal failure here
		// indicates a programmer error in a field type.
		panic(fmt.Sprintf("blackboard: snapshot marshal: %v", err))
	}
	var clone State
	if err := json.Unmarshal(data, &clone); err != nil {
		panic(fmt.Sprintf("blackboard: snapshot unmarshal: %v", err))
	}
	return clone
}

// HistoryText renders a short readable projection of the plan history, used
// as context for the perception and decision agent prompts.
func (b *Blackboard) HistoryText(maxTextLen int) string {
	if maxTextLen <= 0 {
		maxTextLen = 200
	}
	var out string
	for _, version := range b.state.PlanVersions {
		for _, step := range version {
			icon := "⏳"
			switch step.Status {
			case StatusCompleted:
				icon = "✅"
			case StatusFailed:
				icon = "❌"
			case StatusSkipped:
				icon = "⏭"
			}
			result := step.ExecutionResult
			if len(result) > maxTextLen {
				result = result[:maxTextLen] + "..."
			}
			out += fmt.Sprintf("%s Step %d (%s): %s -> %s\n", icon, step.StepIndex, step.Type, step.Description, result)
		}
	}
	return out
}
